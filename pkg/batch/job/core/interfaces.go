package core

import (
	"context"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
)

// Job は実行可能なバッチジョブのインターフェースです。
type Job interface {
	Run(ctx context.Context, jobExecution *JobExecution) error
	JobName() string
	Flow() *Flow
	ValidateParameters(params JobParameters) error
}

// Step はジョブ内で実行される単一のステップのインターフェースです。
// Execute は stepExecution の Status を終了状態に一度だけ設定します。
type Step interface {
	Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error
	StepName() string
	// RequiredParameters はステップ開始時に JobParameters から解決するパラメータ名です。
	RequiredParameters() []string
}

// ItemReader はデータを読み込むステップのインターフェースです。
// O は読み込まれるアイテムの型です。データの終端では io.EOF を返します。
type ItemReader[O any] interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (O, error)
	Close(ctx context.Context) error
}

// ItemProcessor はアイテムを処理するステップのインターフェースです。
// I は入力アイテムの型、O は出力アイテムの型です。
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter はデータを書き込むステップのインターフェースです。
// I は書き込まれるアイテムの型です。Write はチャンク単位のトランザクションを受け取ります。
type ItemWriter[I any] interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, tx database.Tx, items []I) error
	Close(ctx context.Context) error
}

// JobExecutionListener はジョブ実行イベントを処理するためのインターフェースです。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// StepExecutionListener はステップ実行イベントを処理するためのインターフェースです。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// ChunkListener はチャンク単位のイベントを処理するためのインターフェースです。
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *StepExecution)
	// AfterChunk はチャンクのコミット後に、書き込んだアイテム数とともに呼び出されます。
	AfterChunk(ctx context.Context, stepExecution *StepExecution, size int)
	OnChunkError(ctx context.Context, stepExecution *StepExecution, err error)
}

// JobParametersIncrementer は JobParameters を自動的にインクリメントするためのインターフェースです。
type JobParametersIncrementer interface {
	GetNext(params JobParameters) JobParameters
}
