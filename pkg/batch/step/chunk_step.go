package step

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/step/processor"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// Resources はステップ開始時に解決されるリーダー、プロセッサ、ライターです。
// Processor が nil の場合、I と O が同じ型であればアイテムをそのまま書き込みます。
type Resources[I, O any] struct {
	Reader    core.ItemReader[I]
	Processor core.ItemProcessor[I, O]
	Writer    core.ItemWriter[O]
}

// ResourceResolver は JobParameters からステップのリソースを組み立てる関数です。
// ステップ定義時ではなく、Execute の開始時に一度だけ呼び出されます。
type ResourceResolver[I, O any] func(params core.JobParameters) (Resources[I, O], error)

type stepOptions struct {
	requiredParameters []string
	txOptions          *sql.TxOptions
	stepListeners      []core.StepExecutionListener
	chunkListeners     []core.ChunkListener
}

// Option は ChunkStep のオプションです。
type Option func(*stepOptions)

// WithRequiredParameters はステップが参照する JobParameters の名前を指定します。
// JobLauncher は起動前にこれらがすべて揃っていることを検証します。
func WithRequiredParameters(names ...string) Option {
	return func(o *stepOptions) {
		o.requiredParameters = append(o.requiredParameters, names...)
	}
}

// WithTxOptions はチャンクのトランザクションオプション (分離レベルなど) を指定します。
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(o *stepOptions) {
		o.txOptions = opts
	}
}

// WithStepListeners は StepExecutionListener を追加します。
func WithStepListeners(listeners ...core.StepExecutionListener) Option {
	return func(o *stepOptions) {
		o.stepListeners = append(o.stepListeners, listeners...)
	}
}

// WithChunkListeners は ChunkListener を追加します。
func WithChunkListeners(listeners ...core.ChunkListener) Option {
	return func(o *stepOptions) {
		o.chunkListeners = append(o.chunkListeners, listeners...)
	}
}

// ChunkStep はチャンク指向のステップです。
type ChunkStep[I, O any] struct {
	name      string
	chunkSize int
	db        database.DBConnection
	resolve   ResourceResolver[I, O]
	opts      stepOptions
}

// ChunkStep が core.Step インターフェースを満たすことを確認します。
var _ core.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep は新しい ChunkStep のインスタンスを作成します。
func NewChunkStep[I, O any](name string, chunkSize int, db database.DBConnection, resolve ResourceResolver[I, O], options ...Option) *ChunkStep[I, O] {
	s := &ChunkStep[I, O]{
		name:      name,
		chunkSize: chunkSize,
		db:        db,
		resolve:   resolve,
	}
	for _, opt := range options {
		opt(&s.opts)
	}
	return s
}

// StepName はステップ名を返します。
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// ChunkSize はチャンクサイズを返します。
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// RequiredParameters はステップが参照する JobParameters の名前を返します。
func (s *ChunkStep[I, O]) RequiredParameters() []string {
	return append([]string(nil), s.opts.requiredParameters...)
}

// Execute はステップを実行し、stepExecution の状態を終了状態に一度だけ設定します。
// 失敗した場合は原因のエラーを返します。停止した場合は nil を返します。
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Infof("ステップ '%s' (Execution ID: %s) を開始します。", s.name, stepExecution.ID)
	stepExecution.MarkAsStarted()

	for _, l := range s.opts.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
	defer func() {
		for _, l := range s.opts.stepListeners {
			l.AfterStep(ctx, stepExecution)
		}
		logger.Infof("ステップ '%s' が終了しました。ステータス: %s, Read: %d, Write: %d, Filter: %d, Commit: %d, Rollback: %d",
			s.name, stepExecution.Status, stepExecution.ReadCount, stepExecution.WriteCount,
			stepExecution.FilterCount, stepExecution.CommitCount, stepExecution.RollbackCount)
	}()

	status, err := s.run(ctx, jobExecution, stepExecution)
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

func (s *ChunkStep[I, O]) run(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) (core.JobStatus, error) {
	var params core.JobParameters
	if jobExecution != nil {
		params = jobExecution.Parameters
	}
	if s.resolve == nil {
		return core.BatchStatusFailed, exception.NewConfigurationError("step", fmt.Sprintf("ステップ '%s' にリソースリゾルバがありません", s.name), nil)
	}
	res, err := s.resolve(params)
	if err != nil {
		return core.BatchStatusFailed, exception.WithKind(err, exception.KindConfiguration, "step",
			fmt.Sprintf("ステップ '%s' のリソース解決に失敗しました", s.name))
	}
	itemProcessor, err := s.processorFor(res)
	if err != nil {
		return core.BatchStatusFailed, err
	}
	if res.Reader == nil || res.Writer == nil {
		return core.BatchStatusFailed, exception.NewConfigurationError("step", fmt.Sprintf("ステップ '%s' の Reader または Writer が解決されませんでした", s.name), nil)
	}

	if err := res.Reader.Open(ctx); err != nil {
		return core.BatchStatusFailed, exception.WithKind(err, exception.KindRead, "reader",
			fmt.Sprintf("ステップ '%s' のリーダーを開けませんでした", s.name))
	}
	defer s.closeComponent(ctx, "Reader", res.Reader.Close)

	if err := res.Writer.Open(ctx); err != nil {
		return core.BatchStatusFailed, exception.WithKind(err, exception.KindWrite, "writer",
			fmt.Sprintf("ステップ '%s' のライターを開けませんでした", s.name))
	}
	defer s.closeComponent(ctx, "Writer", res.Writer.Close)

	cp := &ChunkProcessor[I, O]{
		Reader:    res.Reader,
		Processor: itemProcessor,
		Writer:    res.Writer,
		DB:        s.db,
		ChunkSize: s.chunkSize,
		TxOptions: s.opts.txOptions,
		Listeners: s.opts.chunkListeners,
	}
	return cp.Process(ctx, stepExecution)
}

func (s *ChunkStep[I, O]) processorFor(res Resources[I, O]) (core.ItemProcessor[I, O], error) {
	if res.Processor != nil {
		return res.Processor, nil
	}
	if p, ok := any(processor.NewPassThroughProcessor[I]()).(core.ItemProcessor[I, O]); ok {
		return p, nil
	}
	return nil, exception.NewConfigurationError("step",
		fmt.Sprintf("ステップ '%s' は入力と出力の型が異なるため Processor が必要です", s.name), nil)
}

func (s *ChunkStep[I, O]) closeComponent(ctx context.Context, kind string, closeFn func(context.Context) error) {
	if err := closeFn(context.WithoutCancel(ctx)); err != nil {
		logger.Warnf("ステップ '%s': %s のクローズに失敗しました: %v", s.name, kind, err)
	}
}
