package connector

import (
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" ドライバを登録

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
)

// pgxConnector は pgx の database/sql ドライバで PostgreSQL に接続します。
type pgxConnector struct{}

func (c *pgxConnector) DriverName() string { return "pgx" }

func (c *pgxConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	return requireConnectionString(cfg)
}

func init() {
	RegisterConnector("pgx", &pgxConnector{})
}
