package listener

import (
	"context"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// LoggingChunkListener はチャンクのコミットと失敗をログに出力する ChunkListener の実装です。
type LoggingChunkListener struct{}

// NewLoggingChunkListener は新しい LoggingChunkListener のインスタンスを作成します。
func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Debugf("ChunkListener: ステップ '%s' のチャンク %d を書き込みます。", stepExecution.StepName, stepExecution.CommitCount+1)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *core.StepExecution, size int) {
	logger.WithFields(map[string]any{
		"step":   stepExecution.StepName,
		"chunk":  stepExecution.CommitCount,
		"items":  size,
		"writes": stepExecution.WriteCount,
	}).Info("ChunkListener: チャンクをコミットしました。")
}

func (l *LoggingChunkListener) OnChunkError(ctx context.Context, stepExecution *core.StepExecution, err error) {
	logger.Errorf("ChunkListener: ステップ '%s' のチャンク処理に失敗しました (コミット済み: %d): %v",
		stepExecution.StepName, stepExecution.CommitCount, err)
}

var _ core.ChunkListener = (*LoggingChunkListener)(nil)
