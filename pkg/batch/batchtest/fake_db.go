// Package batchtest はバッチコンポーネントのテスト用フェイクを提供します。
package batchtest

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
)

var errNotSupported = errors.New("batchtest: not supported")

// FakeDB はトランザクション単位でアイテムを保持する database.DBConnection です。
// Tx に Stage したアイテムは Commit されたときだけ Committed に現れます。
type FakeDB struct {
	mu        sync.Mutex
	committed [][]any
	begun     int
	rollbacks int
	BeginErr  error
	CommitErr error
}

// NewFakeDB は新しい FakeDB を作成します。
func NewFakeDB() *FakeDB {
	return &FakeDB{}
}

func (db *FakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (database.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.BeginErr != nil {
		return nil, db.BeginErr
	}
	db.begun++
	return &FakeTx{db: db}, nil
}

// Committed はコミットされたチャンクのコピーを返します。
func (db *FakeDB) Committed() [][]any {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([][]any, len(db.committed))
	for i, c := range db.committed {
		out[i] = append([]any(nil), c...)
	}
	return out
}

// CommittedItems はコミットされたすべてのアイテムを順に返します。
func (db *FakeDB) CommittedItems() []any {
	var items []any
	for _, c := range db.Committed() {
		items = append(items, c...)
	}
	return items
}

// ChunkSizes はコミットされたチャンクごとのアイテム数を返します。
func (db *FakeDB) ChunkSizes() []int {
	committed := db.Committed()
	sizes := make([]int, len(committed))
	for i, c := range committed {
		sizes[i] = len(c)
	}
	return sizes
}

// Begun は開始されたトランザクションの数を返します。
func (db *FakeDB) Begun() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.begun
}

// Rollbacks はロールバックされたトランザクションの数を返します。
func (db *FakeDB) Rollbacks() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rollbacks
}

func (db *FakeDB) Close() error                          { return nil }
func (db *FakeDB) PingContext(ctx context.Context) error { return nil }

func (db *FakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errNotSupported
}

func (db *FakeDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errNotSupported
}

func (db *FakeDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

// FakeTx は FakeDB のトランザクションです。
type FakeTx struct {
	db      *FakeDB
	pending []any
	done    bool
}

// Stage はアイテムをトランザクションに追加します。
func (tx *FakeTx) Stage(items ...any) {
	tx.pending = append(tx.pending, items...)
}

func (tx *FakeTx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.db.CommitErr != nil {
		tx.db.rollbacks++
		return tx.db.CommitErr
	}
	tx.db.committed = append(tx.db.committed, tx.pending)
	return nil
}

func (tx *FakeTx) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.pending = nil
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.db.rollbacks++
	return nil
}

func (tx *FakeTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, errNotSupported
}

func (tx *FakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errNotSupported
}

func (tx *FakeTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errNotSupported
}

func (tx *FakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

var _ database.DBConnection = (*FakeDB)(nil)
