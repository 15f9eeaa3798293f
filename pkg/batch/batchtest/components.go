package batchtest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// Sequence は 1 から n までの整数を返します。
func Sequence(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i + 1
	}
	return items
}

// FailingReader は FailAt 件目 (1 始まり) の読み込みで Err を返す ItemReader です。
// FailAt が 0 の場合は失敗せず、Items を返し終えると io.EOF を返します。
type FailingReader[T any] struct {
	Items  []T
	FailAt int
	Err    error
	// OnRead は各 Read の前に呼ばれます。停止シグナルのテストに使います。
	OnRead func(n int)

	pos    int
	opened atomic.Bool
	closed atomic.Bool
}

func (r *FailingReader[T]) Open(ctx context.Context) error {
	r.opened.Store(true)
	return nil
}

func (r *FailingReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	n := r.pos + 1
	if r.OnRead != nil {
		r.OnRead(n)
	}
	if r.FailAt > 0 && n == r.FailAt {
		return zero, r.Err
	}
	if r.pos >= len(r.Items) {
		return zero, io.EOF
	}
	item := r.Items[r.pos]
	r.pos++
	return item, nil
}

func (r *FailingReader[T]) Close(ctx context.Context) error {
	r.closed.Store(true)
	return nil
}

// Opened はリーダーが開かれたかどうかを返します。
func (r *FailingReader[T]) Opened() bool { return r.opened.Load() }

// Closed はリーダーが閉じられたかどうかを返します。
func (r *FailingReader[T]) Closed() bool { return r.closed.Load() }

// TxWriter は FakeTx にアイテムを Stage する ItemWriter です。
// FailOnChunk 回目 (1 始まり) の Write では、アイテムを Stage した後に Err を返します。
type TxWriter[T any] struct {
	FailOnChunk int
	Err         error

	mu     sync.Mutex
	writes int
}

func (w *TxWriter[T]) Open(ctx context.Context) error  { return nil }
func (w *TxWriter[T]) Close(ctx context.Context) error { return nil }

func (w *TxWriter[T]) Write(ctx context.Context, tx database.Tx, items []T) error {
	w.mu.Lock()
	w.writes++
	n := w.writes
	w.mu.Unlock()

	fake, ok := tx.(*FakeTx)
	if !ok {
		return fmt.Errorf("batchtest: unexpected tx %T", tx)
	}
	for _, item := range items {
		fake.Stage(item)
	}
	if w.FailOnChunk > 0 && n == w.FailOnChunk {
		return w.Err
	}
	return nil
}

// Writes は Write が呼ばれた回数を返します。
func (w *TxWriter[T]) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// FuncStep は関数で振る舞いを差し替えられる core.Step です。
// Run が返した状態で stepExecution を終了します。
type FuncStep struct {
	Name   string
	Params []string
	Run    func(ctx context.Context, stepExecution *core.StepExecution) (core.JobStatus, error)

	calls atomic.Int32
}

func (s *FuncStep) StepName() string             { return s.Name }
func (s *FuncStep) RequiredParameters() []string { return s.Params }

func (s *FuncStep) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	s.calls.Add(1)
	stepExecution.MarkAsStarted()
	status, err := core.BatchStatusCompleted, error(nil)
	if s.Run != nil {
		status, err = s.Run(ctx, stepExecution)
	}
	switch status {
	case core.BatchStatusCompleted:
		stepExecution.MarkAsCompleted()
	case core.BatchStatusStopped:
		stepExecution.MarkAsStopped()
	default:
		stepExecution.MarkAsFailed(err)
	}
	return err
}

// Calls は Execute が呼ばれた回数を返します。
func (s *FuncStep) Calls() int { return int(s.calls.Load()) }

var (
	_ core.Step            = (*FuncStep)(nil)
	_ core.ItemReader[int] = (*FailingReader[int])(nil)
	_ core.ItemWriter[int] = (*TxWriter[int])(nil)
)
