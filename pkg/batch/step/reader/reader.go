package reader

import (
	"context"
	"io"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// anyReader は型付きの ItemReader を any で扱うためのアダプターです。
type anyReader[T any] struct {
	delegate core.ItemReader[T]
}

// AsAny は型付きの ItemReader を ItemReader[any] に変換します。
// JSL から組み立てるステップは ChunkStep[any, any] なので、コンポーネントはこれで登録します。
func AsAny[T any](r core.ItemReader[T]) core.ItemReader[any] {
	return &anyReader[T]{delegate: r}
}

func (a *anyReader[T]) Open(ctx context.Context) error {
	return a.delegate.Open(ctx)
}

func (a *anyReader[T]) Read(ctx context.Context) (any, error) {
	item, err := a.delegate.Read(ctx)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (a *anyReader[T]) Close(ctx context.Context) error {
	return a.delegate.Close(ctx)
}

// SliceReader はメモリ上のスライスからアイテムを順に返す ItemReader です。
// 終端に達すると io.EOF を返します。
type SliceReader[T any] struct {
	items        []T
	currentIndex int
}

// NewSliceReader は新しい SliceReader を作成します。
func NewSliceReader[T any](items []T) *SliceReader[T] {
	return &SliceReader[T]{items: items}
}

func (r *SliceReader[T]) Open(ctx context.Context) error {
	r.currentIndex = 0
	return nil
}

func (r *SliceReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.currentIndex >= len(r.items) {
		return zero, io.EOF
	}
	item := r.items[r.currentIndex]
	r.currentIndex++
	return item, nil
}

func (r *SliceReader[T]) Close(ctx context.Context) error {
	return nil
}

var _ core.ItemReader[any] = (*SliceReader[any])(nil)
