package step

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/step/processor"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// ErrNoMoreItems はリーダーがデータの終端に達したことを示します。io.EOF と同じ扱いです。
var ErrNoMoreItems = errors.New("no more items")

func isEndOfData(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrNoMoreItems)
}

// ChunkProcessor は読み込み、変換、書き込みを固定サイズのチャンク単位で繰り返します。
// チャンクの書き込みは一つのトランザクションで行われ、チャンク境界だけがコミットポイントです。
type ChunkProcessor[I, O any] struct {
	Reader    core.ItemReader[I]
	Processor core.ItemProcessor[I, O]
	Writer    core.ItemWriter[O]
	DB        database.DBConnection
	ChunkSize int
	TxOptions *sql.TxOptions
	Listeners []core.ChunkListener
}

// ProcessChunks は ChunkProcessor を組み立てて実行します。
func ProcessChunks[I, O any](
	ctx context.Context,
	db database.DBConnection,
	reader core.ItemReader[I],
	itemProcessor core.ItemProcessor[I, O],
	writer core.ItemWriter[O],
	chunkSize int,
	stepExecution *core.StepExecution,
	listeners ...core.ChunkListener,
) (core.JobStatus, error) {
	p := &ChunkProcessor[I, O]{
		Reader:    reader,
		Processor: itemProcessor,
		Writer:    writer,
		DB:        db,
		ChunkSize: chunkSize,
		Listeners: listeners,
	}
	return p.Process(ctx, stepExecution)
}

// Process はデータソースが尽きるまでチャンクを処理します。
//
// 停止シグナル (ctx のキャンセル) はチャンクを開始する前にだけ確認され、その場合は STOPPED を返します。
// チャンク内の読み込み、変換、書き込み、コミットはキャンセルから切り離されたコンテキストで実行されます。
// 読み込み、変換、書き込みのいずれかが失敗した場合は、そのチャンクをロールバックして FAILED を返します。
func (p *ChunkProcessor[I, O]) Process(ctx context.Context, stepExecution *core.StepExecution) (core.JobStatus, error) {
	if err := p.validate(); err != nil {
		return core.BatchStatusFailed, err
	}

	chunkCtx := context.WithoutCancel(ctx)
	for chunkNo := 1; ; chunkNo++ {
		select {
		case <-ctx.Done():
			logger.Warnf("ステップ '%s': 停止シグナルを受け取りました。チャンク %d の前で停止します。コミット済みチャンク数: %d",
				stepExecution.StepName, chunkNo, stepExecution.CommitCount)
			return core.BatchStatusStopped, nil
		default:
		}

		items, endOfData, err := p.readChunk(chunkCtx, stepExecution)
		if err != nil {
			p.notifyError(chunkCtx, stepExecution, err)
			return core.BatchStatusFailed, err
		}

		if len(items) > 0 {
			p.notifyBefore(chunkCtx, stepExecution)
			if err := p.writeChunk(chunkCtx, stepExecution, items); err != nil {
				p.notifyError(chunkCtx, stepExecution, err)
				return core.BatchStatusFailed, err
			}
			logger.Debugf("ステップ '%s': チャンク %d (%d 件) をコミットしました。", stepExecution.StepName, chunkNo, len(items))
			p.notifyAfter(chunkCtx, stepExecution, len(items))
		}

		if endOfData {
			logger.Debugf("ステップ '%s': データの終端に達しました。Read: %d, Write: %d, Commit: %d",
				stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.CommitCount)
			return core.BatchStatusCompleted, nil
		}
	}
}

func (p *ChunkProcessor[I, O]) validate() error {
	if p.ChunkSize < 1 {
		return exception.NewConfigurationError("chunk", fmt.Sprintf("チャンクサイズは 1 以上である必要があります: %d", p.ChunkSize), nil)
	}
	if p.Reader == nil || p.Processor == nil || p.Writer == nil || p.DB == nil {
		return exception.NewConfigurationError("chunk", "Reader, Processor, Writer, DB はすべて必須です", nil)
	}
	return nil
}

// readChunk は最大 ChunkSize 件を読み込み、変換したアイテムを返します。
// 読み込み件数は除外されたアイテムも含めて数えます。
func (p *ChunkProcessor[I, O]) readChunk(ctx context.Context, stepExecution *core.StepExecution) ([]O, bool, error) {
	items := make([]O, 0, p.ChunkSize)
	for read := 0; read < p.ChunkSize; read++ {
		item, err := p.Reader.Read(ctx)
		if err != nil {
			if isEndOfData(err) {
				return items, true, nil
			}
			return nil, false, exception.WithKind(err, exception.KindRead, "reader",
				fmt.Sprintf("ステップ '%s' のアイテム読み込みに失敗しました", stepExecution.StepName))
		}
		stepExecution.ReadCount++

		out, err := p.Processor.Process(ctx, item)
		if err != nil {
			if errors.Is(err, processor.ErrItemFiltered) {
				stepExecution.FilterCount++
				continue
			}
			return nil, false, exception.WithKind(err, exception.KindProcess, "processor",
				fmt.Sprintf("ステップ '%s' のアイテム処理に失敗しました", stepExecution.StepName))
		}
		items = append(items, out)
	}
	return items, false, nil
}

// writeChunk はチャンクを一つのトランザクションで書き込みます。
func (p *ChunkProcessor[I, O]) writeChunk(ctx context.Context, stepExecution *core.StepExecution, items []O) error {
	tx, err := p.DB.BeginTx(ctx, p.TxOptions)
	if err != nil {
		return exception.NewWriteError("writer", fmt.Sprintf("ステップ '%s' のトランザクション開始に失敗しました", stepExecution.StepName), err)
	}

	if err := p.Writer.Write(ctx, tx, items); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("ステップ '%s': トランザクションのロールバックに失敗しました: %v", stepExecution.StepName, rbErr)
		}
		stepExecution.RollbackCount++
		return exception.WithKind(err, exception.KindWrite, "writer",
			fmt.Sprintf("ステップ '%s' のチャンク書き込みに失敗しました", stepExecution.StepName))
	}

	if err := tx.Commit(); err != nil {
		stepExecution.RollbackCount++
		return exception.NewWriteError("writer", fmt.Sprintf("ステップ '%s' のチャンクのコミットに失敗しました", stepExecution.StepName), err)
	}
	stepExecution.WriteCount += len(items)
	stepExecution.CommitCount++
	return nil
}

func (p *ChunkProcessor[I, O]) notifyBefore(ctx context.Context, stepExecution *core.StepExecution) {
	for _, l := range p.Listeners {
		l.BeforeChunk(ctx, stepExecution)
	}
}

func (p *ChunkProcessor[I, O]) notifyAfter(ctx context.Context, stepExecution *core.StepExecution, size int) {
	for _, l := range p.Listeners {
		l.AfterChunk(ctx, stepExecution, size)
	}
}

func (p *ChunkProcessor[I, O]) notifyError(ctx context.Context, stepExecution *core.StepExecution, err error) {
	for _, l := range p.Listeners {
		l.OnChunkError(ctx, stepExecution, err)
	}
}
