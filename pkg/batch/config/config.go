package config

import (
	"fmt"
	"net/url"
	"strings"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig はデータベース接続の設定です。
// Type は postgres, pgx, redshift, mysql, snowflake のいずれかです。
type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// Snowflake 用
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Schema    string `yaml:"schema"`
	Role      string `yaml:"role"`

	AppMigrationPath string               `yaml:"app_migration_path"`
	ConnectionPool   ConnectionPoolConfig `yaml:"connection_pool"`
	ConnectRetry     ConnectRetryConfig   `yaml:"connect_retry"`
}

// ConnectRetryConfig は起動時のデータベース接続リトライ設定です。
type ConnectRetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

// ConnectionString はドライバに渡す接続文字列を返します。
// snowflake の DSN は connector パッケージで組み立てます。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "pgx", "redshift":
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:     "/" + c.Database,
			RawQuery: "sslmode=" + url.QueryEscape(sslmode),
		}
		return u.String()
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.User, c.Password, c.Host, c.Port, c.Database)
	default:
		return ""
	}
}

// BatchConfig はバッチ実行の設定です。
type BatchConfig struct {
	JobName   string `yaml:"job_name"`
	ChunkSize int    `yaml:"chunk_size"`
	// DefaultParameters はコマンドラインで上書きされない場合に使う JobParameters です。
	DefaultParameters map[string]string `yaml:"default_parameters"`
}

// LoggingConfig はロギングの設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// MetricsConfig は Prometheus メトリクスの公開設定です。
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// AMQPConfig はジョブ完了通知の送信先です。
type AMQPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type NotificationConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
}

type Config struct {
	Database       DatabaseConfig     `yaml:"database"`
	Batch          BatchConfig        `yaml:"batch"`
	System         SystemConfig       `yaml:"system"`
	Metrics        MetricsConfig      `yaml:"metrics"`
	Notification   NotificationConfig `yaml:"notification"`
	EmbeddedConfig EmbeddedConfig     `yaml:"-"` // 埋め込み設定を格納するためのフィールド。YAMLからは読み込まない。
}

// NewConfig はデフォルト値を持つ Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO", Format: "text"},
		},
		Batch: BatchConfig{
			ChunkSize:         100,
			DefaultParameters: map[string]string{},
		},
		Database: DatabaseConfig{
			Type:    "postgres",
			Sslmode: "disable",
			ConnectRetry: ConnectRetryConfig{
				MaxAttempts:     10,
				IntervalSeconds: 5,
			},
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Notification: NotificationConfig{
			AMQP: AMQPConfig{
				Exchange:   "batch.events",
				RoutingKey: "job.finished",
			},
		},
	}
}
