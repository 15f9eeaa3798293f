package writer

import (
	"context"

	"github.com/tusharparekh/scaling-demos/example/transactions/domain/entity"
	appRepo "github.com/tusharparekh/scaling-demos/example/transactions/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

// TransactionWriter は取引のチャンクを TransactionRepository に書き込む ItemWriter です。
type TransactionWriter struct {
	repo appRepo.TransactionRepository
}

// NewTransactionWriter は新しい TransactionWriter のインスタンスを作成します。
func NewTransactionWriter(repo appRepo.TransactionRepository) *TransactionWriter {
	return &TransactionWriter{repo: repo}
}

func (w *TransactionWriter) Open(ctx context.Context) error {
	return nil
}

// Write はチャンクを tx の中で保存します。コミットとロールバックは呼び出し元が行います。
func (w *TransactionWriter) Write(ctx context.Context, tx database.Tx, items []entity.Transaction) error {
	if len(items) == 0 {
		return nil
	}
	if err := w.repo.BulkInsert(ctx, tx, items); err != nil {
		return exception.NewWriteError("transaction_writer", "取引データの保存に失敗しました", err)
	}
	return nil
}

func (w *TransactionWriter) Close(ctx context.Context) error {
	return nil
}

var _ core.ItemWriter[entity.Transaction] = (*TransactionWriter)(nil)
