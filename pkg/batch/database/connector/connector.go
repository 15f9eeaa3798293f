package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続方法を表すインターフェースです。
type DBConnector interface {
	// DriverName は database/sql に登録されたドライバ名です。
	DriverName() string
	// DSN は設定からドライバ固有の接続文字列を組み立てます。
	DSN(cfg config.DatabaseConfig) (string, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名で DBConnector を登録します。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	key := strings.ToLower(dbType)
	if _, exists := connectors[key]; exists {
		logger.Warnf("DBConnector '%s' は既に登録されています。上書きします。", key)
	}
	connectors[key] = connector
}

// Lookup は登録された DBConnector を返します。
func Lookup(dbType string) (DBConnector, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := connectors[strings.ToLower(dbType)]
	if !ok {
		return nil, exception.NewConfigurationError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", dbType), nil)
	}
	return c, nil
}

// RegisteredTypes は登録済みのデータベースタイプを返します。
func RegisteredTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(connectors))
	for t := range connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// GetSQLDB は設定に基づいて接続を開き、プール設定を適用して Ping します。
func GetSQLDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	c, err := Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	dsn, err := c.DSN(cfg)
	if err != nil {
		return nil, exception.NewConfigurationError("database", fmt.Sprintf("%s の接続文字列を構築できません", cfg.Type), err)
	}

	db, err := sql.Open(c.DriverName(), dsn)
	if err != nil {
		return nil, exception.NewBatchError("database", fmt.Sprintf("%s への接続に失敗しました", cfg.Type), err)
	}

	pool := cfg.ConnectionPool
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, exception.NewBatchError("database", fmt.Sprintf("%s への Ping に失敗しました", cfg.Type), err)
	}

	logger.Debugf("%s に正常に接続しました。MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %d秒",
		cfg.Type, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}

func requireConnectionString(cfg config.DatabaseConfig) (string, error) {
	dsn := cfg.ConnectionString()
	if dsn == "" {
		return "", fmt.Errorf("データベースタイプ '%s' の接続文字列が空です", cfg.Type)
	}
	return dsn, nil
}
