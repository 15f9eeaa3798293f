package connector

import (
	"github.com/go-sql-driver/mysql"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
)

// mysqlConnector は MySQL への接続を確立する DBConnector の実装です。
type mysqlConnector struct{}

func (c *mysqlConnector) DriverName() string { return "mysql" }

// DSN は DATETIME を time.Time として扱えるように parseTime を有効にします。
func (c *mysqlConnector) DSN(cfg config.DatabaseConfig) (string, error) {
	base, err := requireConnectionString(cfg)
	if err != nil {
		return "", err
	}
	mc, err := mysql.ParseDSN(base)
	if err != nil {
		return "", err
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
