package repository

import (
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// SQLJobRepository は JobRepository の SQL データベース実装です。
// 各リポジトリの具体的な実装を埋め込み、委譲します。
type SQLJobRepository struct {
	db database.DBConnection

	*SQLJobInstanceRepository
	*SQLJobExecutionRepository
	*SQLStepExecutionRepository
}

// NewSQLJobRepository は新しい SQLJobRepository のインスタンスを作成します。
// dialect はクエリのバインド変数表記を決めます。
func NewSQLJobRepository(db database.DBConnection, dialect database.Dialect) *SQLJobRepository {
	instanceRepo := NewSQLJobInstanceRepository(db, dialect)
	executionRepo := NewSQLJobExecutionRepository(db, dialect)
	stepRepo := NewSQLStepExecutionRepository(db, dialect)

	executionRepo.SetStepExecutionRepository(stepRepo)
	stepRepo.SetJobExecutionRepository(executionRepo)

	return &SQLJobRepository{
		db:                         db,
		SQLJobInstanceRepository:   instanceRepo,
		SQLJobExecutionRepository:  executionRepo,
		SQLStepExecutionRepository: stepRepo,
	}
}

// Close はデータベース接続を閉じます。
func (r *SQLJobRepository) Close() error {
	if r.db == nil {
		return nil
	}
	if err := r.db.Close(); err != nil {
		return exception.NewBatchError(module, "データベース接続を閉じるのに失敗しました", err)
	}
	logger.Debugf("JobRepository のデータベース接続を閉じました。")
	return nil
}

var _ JobRepository = (*SQLJobRepository)(nil)
