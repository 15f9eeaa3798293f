package connector

import (
	"fmt"

	"github.com/snowflakedb/gosnowflake"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
)

// snowflakeConnector は Snowflake への接続を確立する DBConnector の実装です。
type snowflakeConnector struct{}

func (c *snowflakeConnector) DriverName() string { return "snowflake" }

func (c *snowflakeConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.Account == "" {
		return "", fmt.Errorf("snowflake には account の指定が必要です")
	}
	sc := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	}
	if cfg.Host != "" {
		sc.Host = cfg.Host
		sc.Port = cfg.Port
	}
	return gosnowflake.DSN(sc)
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
