package repository

import (
	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// NewJobRepository は設定に基づいて JobRepository を作成します。
// データベースタイプが "memory" の場合、または db が nil の場合はインメモリの実装を返します。
func NewJobRepository(cfg config.DatabaseConfig, db database.DBConnection) JobRepository {
	if cfg.Type == "memory" || db == nil {
		logger.Debugf("InMemoryJobRepository を生成しました。")
		return NewInMemoryJobRepository()
	}
	dialect := database.DialectFor(cfg.Type)
	logger.Debugf("SQLJobRepository を生成しました (Type: %s, Dialect: %s)。", cfg.Type, dialect)
	return NewSQLJobRepository(db, dialect)
}
