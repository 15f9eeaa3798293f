package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
// YAML はデフォルト値の上に重ねて読み込まれ、最後に環境変数で上書きされます。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()

	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, fmt.Errorf("YAML設定のパースに失敗しました: %w", err)
	}
	if cfg.Batch.DefaultParameters == nil {
		cfg.Batch.DefaultParameters = map[string]string{}
	}
	cfg.EmbeddedConfig = l.data

	loadEnvVars(cfg)

	if cfg.Batch.ChunkSize < 1 {
		return nil, fmt.Errorf("batch.chunk_size は 1 以上である必要があります: %d", cfg.Batch.ChunkSize)
	}
	return cfg, nil
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	setString("DATABASE_TYPE", &cfg.Database.Type)
	setString("DATABASE_HOST", &cfg.Database.Host)
	setInt("DATABASE_PORT", &cfg.Database.Port)
	setString("DATABASE_DATABASE", &cfg.Database.Database)
	setString("DATABASE_USER", &cfg.Database.User)
	setString("DATABASE_PASSWORD", &cfg.Database.Password)
	setString("DATABASE_SSLMODE", &cfg.Database.Sslmode)
	setString("DATABASE_ACCOUNT", &cfg.Database.Account)
	setString("DATABASE_WAREHOUSE", &cfg.Database.Warehouse)
	setString("DATABASE_SCHEMA", &cfg.Database.Schema)
	setString("DATABASE_ROLE", &cfg.Database.Role)
	setString("DATABASE_APP_MIGRATION_PATH", &cfg.Database.AppMigrationPath)
	setInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	setInt("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	setInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	setString("BATCH_JOB_NAME", &cfg.Batch.JobName)
	setInt("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)

	setString("SYSTEM_TIMEZONE", &cfg.System.Timezone)
	setString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
	setString("SYSTEM_LOGGING_FORMAT", &cfg.System.Logging.Format)

	setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("METRICS_ADDRESS", &cfg.Metrics.Address)

	setBool("NOTIFICATION_AMQP_ENABLED", &cfg.Notification.AMQP.Enabled)
	setString("NOTIFICATION_AMQP_URL", &cfg.Notification.AMQP.URL)
	setString("NOTIFICATION_AMQP_EXCHANGE", &cfg.Notification.AMQP.Exchange)
	setString("NOTIFICATION_AMQP_ROUTING_KEY", &cfg.Notification.AMQP.RoutingKey)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("%s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, v)
		return
	}
	*dst = n
}

func setBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("%s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, v)
		return
	}
	*dst = b
}
