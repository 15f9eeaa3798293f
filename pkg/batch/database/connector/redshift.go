package connector

import (
	_ "github.com/lib/pq" // Redshift は PostgreSQL と互換性があるため、pq ドライバを使用

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
)

// redshiftConnector は Redshift への接続を確立する DBConnector の実装です。
type redshiftConnector struct{}

func (c *redshiftConnector) DriverName() string { return "postgres" }

func (c *redshiftConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	return requireConnectionString(cfg)
}

func init() {
	RegisterConnector("redshift", &redshiftConnector{})
}
