package writer

import (
	"context"
	"fmt"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// anyWriter は型付きの ItemWriter を any で扱うためのアダプターです。
type anyWriter[T any] struct {
	delegate core.ItemWriter[T]
}

// AsAny は型付きの ItemWriter を ItemWriter[any] に変換します。
// 書き込むアイテムが T でない場合、トランザクションに触れずにエラーを返します。
func AsAny[T any](w core.ItemWriter[T]) core.ItemWriter[any] {
	return &anyWriter[T]{delegate: w}
}

func (a *anyWriter[T]) Open(ctx context.Context) error {
	return a.delegate.Open(ctx)
}

func (a *anyWriter[T]) Write(ctx context.Context, tx database.Tx, items []any) error {
	typed := make([]T, 0, len(items))
	for i, item := range items {
		t, ok := item.(T)
		if !ok {
			var zero T
			return fmt.Errorf("writer: %d 番目のアイテムの型 %T は %T ではありません", i, item, zero)
		}
		typed = append(typed, t)
	}
	return a.delegate.Write(ctx, tx, typed)
}

func (a *anyWriter[T]) Close(ctx context.Context) error {
	return a.delegate.Close(ctx)
}
