package database

import (
	"context"
	"database/sql"
)

// Tx はチャンクの書き込みに渡されるトランザクションです。
// *sql.Tx はそのままこのインターフェースを満たします。
type Tx interface {
	Commit() error
	Rollback() error
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DBConnection はリポジトリとチャンク処理が使うデータベース接続です。
// BeginTx が Tx を返す点だけが *sql.DB と異なります。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlDB は *sql.DB を DBConnection として扱います。BeginTx 以外のメソッドは *sql.DB のものです。
type sqlDB struct {
	*sql.DB
}

// NewSQLDBAdapter は *sql.DB を DBConnection に変換します。
func NewSQLDBAdapter(db *sql.DB) DBConnection {
	return sqlDB{DB: db}
}

func (d sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

var _ Tx = (*sql.Tx)(nil)
