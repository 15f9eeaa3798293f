package connector

import (
	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
)

// postgresConnector は lib/pq で PostgreSQL に接続します。
type postgresConnector struct{}

func (c *postgresConnector) DriverName() string { return "postgres" }

func (c *postgresConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	return requireConnectionString(cfg)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
