package processor

import (
	"context"
	"errors"
	"fmt"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// ErrItemFiltered は Process がアイテムを書き込み対象から除外したことを示します。
// チャンクの書き込みからは外れ、StepExecution.FilterCount が加算されます。
var ErrItemFiltered = errors.New("item filtered")

// PassThroughProcessor は入力をそのまま返す ItemProcessor です。
type PassThroughProcessor[T any] struct{}

// NewPassThroughProcessor は新しい PassThroughProcessor を作成します。
func NewPassThroughProcessor[T any]() *PassThroughProcessor[T] {
	return &PassThroughProcessor[T]{}
}

func (p *PassThroughProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	return item, nil
}

// FuncProcessor は関数を ItemProcessor として扱います。
type FuncProcessor[I, O any] func(ctx context.Context, item I) (O, error)

func (f FuncProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// anyProcessor は型付きの ItemProcessor を any で扱うためのアダプターです。
type anyProcessor[I, O any] struct {
	delegate core.ItemProcessor[I, O]
}

// AsAny は型付きの ItemProcessor を ItemProcessor[any, any] に変換します。
// 入力アイテムが I でない場合はエラーになります。
func AsAny[I, O any](p core.ItemProcessor[I, O]) core.ItemProcessor[any, any] {
	return &anyProcessor[I, O]{delegate: p}
}

func (a *anyProcessor[I, O]) Process(ctx context.Context, item any) (any, error) {
	typed, ok := item.(I)
	if !ok {
		var zero I
		return nil, fmt.Errorf("processor: アイテムの型 %T は %T ではありません", item, zero)
	}
	return a.delegate.Process(ctx, typed)
}

var (
	_ core.ItemProcessor[any, any] = (*PassThroughProcessor[any])(nil)
	_ core.ItemProcessor[int, int] = FuncProcessor[int, int](nil)
)
