package repository

import (
	"context"
	"fmt"

	"github.com/tusharparekh/scaling-demos/example/transactions/domain/entity"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// TransactionRepository は取引をチャンクのトランザクション内で保存します。
type TransactionRepository interface {
	BulkInsert(ctx context.Context, tx database.Tx, items []entity.Transaction) error
}

// SQLTransactionRepository は transaction テーブルに INSERT する TransactionRepository です。
type SQLTransactionRepository struct {
	insertSQL string
}

// NewSQLTransactionRepository は dialect のバインド変数表記で INSERT 文を組み立てます。
func NewSQLTransactionRepository(dialect database.Dialect) *SQLTransactionRepository {
	return &SQLTransactionRepository{
		insertSQL: "INSERT INTO transaction (account, amount, timestamp) VALUES (" + dialect.Placeholders(1, 3) + ")",
	}
}

// InsertSQL は使用する INSERT 文を返します。
func (r *SQLTransactionRepository) InsertSQL() string {
	return r.insertSQL
}

// BulkInsert は INSERT 文を一度だけ準備し、items を順に挿入します。
func (r *SQLTransactionRepository) BulkInsert(ctx context.Context, tx database.Tx, items []entity.Transaction) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, r.insertSQL)
	if err != nil {
		return fmt.Errorf("transaction テーブルへの INSERT 文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		if _, err := stmt.ExecContext(ctx, item.Account, item.Amount, item.Timestamp); err != nil {
			return fmt.Errorf("%d 番目の取引 (account: %s) の挿入に失敗しました: %w", i+1, item.Account, err)
		}
	}
	logger.Debugf("transaction テーブルに %d 件を挿入しました。", len(items))
	return nil
}

var _ TransactionRepository = (*SQLTransactionRepository)(nil)
