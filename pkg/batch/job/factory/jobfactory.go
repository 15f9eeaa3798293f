package factory

import (
	"fmt"

	"github.com/tusharparekh/scaling-demos/pkg/batch/job/component"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/jsl"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/runner"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const module = "job_factory"

// JobFactory は JSL 定義と Registry から core.Job を生成するためのファクトリです。
type JobFactory struct {
	definitions   *jsl.Definitions
	converter     *jsl.Converter
	jobRepository repository.JobRepository
	jobListeners  []core.JobExecutionListener
}

// Option は JobFactory のオプションです。
type Option func(*JobFactory)

// WithJobListeners はすべてのジョブに追加する JobExecutionListener を指定します。
func WithJobListeners(listeners ...core.JobExecutionListener) Option {
	return func(f *JobFactory) {
		f.jobListeners = append(f.jobListeners, listeners...)
	}
}

// WithStepListeners はすべてのステップに追加する StepExecutionListener を指定します。
func WithStepListeners(listeners ...core.StepExecutionListener) Option {
	return func(f *JobFactory) {
		f.converter.StepListeners = append(f.converter.StepListeners, listeners...)
	}
}

// WithChunkListeners はすべてのステップに追加する ChunkListener を指定します。
func WithChunkListeners(listeners ...core.ChunkListener) Option {
	return func(f *JobFactory) {
		f.converter.ChunkListeners = append(f.converter.ChunkListeners, listeners...)
	}
}

// NewJobFactory は新しい JobFactory のインスタンスを作成します。
// chunk の item-count を省略したステップには deps.Config.Batch.ChunkSize を使います。
func NewJobFactory(definitions *jsl.Definitions, registry *component.Registry, deps component.Dependencies, repo repository.JobRepository, opts ...Option) *JobFactory {
	chunkSize := 0
	if deps.Config != nil {
		chunkSize = deps.Config.Batch.ChunkSize
	}
	f := &JobFactory{
		definitions: definitions,
		converter: &jsl.Converter{
			Registry:         registry,
			Deps:             deps,
			DefaultChunkSize: chunkSize,
		},
		jobRepository: repo,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// JobNames は生成できるジョブの ID を返します。
func (f *JobFactory) JobNames() []string {
	return f.definitions.IDs()
}

// CreateJob は JSL 定義からジョブを作成します。jobName は JSL の id です。
func (f *JobFactory) CreateJob(jobName string) (core.Job, error) {
	logger.Debugf("JobFactory で Job '%s' の作成を試みます。", jobName)

	jslJob, ok := f.definitions.Get(jobName)
	if !ok {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("指定された Job '%s' の JSL 定義が見つかりません", jobName), nil)
	}

	flow, err := f.converter.ConvertFlow(jslJob.Flow)
	if err != nil {
		return nil, exception.WithKind(err, exception.KindConfiguration, module, fmt.Sprintf("JSL ジョブ '%s' のフロー変換に失敗しました", jobName))
	}

	listeners := append([]core.JobExecutionListener(nil), f.jobListeners...)
	for _, ref := range jslJob.Listeners {
		builder, err := f.converter.Registry.JobListener(ref.Ref)
		if err != nil {
			return nil, err
		}
		l, err := builder(f.converter.Deps)
		if err != nil {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("JobExecutionListener '%s' のビルドに失敗しました", ref.Ref), err)
		}
		listeners = append(listeners, l)
		logger.Debugf("JobExecutionListener '%s' を生成しました。", ref.Ref)
	}

	job, err := runner.NewFlowJob(jslJob.JobName(), flow, f.jobRepository, listeners...)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Job '%s' を JSL 定義から作成しました。必要なパラメータ: %v", jobName, flow.RequiredParameters())
	return job, nil
}

// GetJobParametersIncrementer は指定されたジョブの JobParametersIncrementer を返します。
// JSL に incrementer が定義されていない場合は nil, nil です。
func (f *JobFactory) GetJobParametersIncrementer(jobName string) (core.JobParametersIncrementer, error) {
	jslJob, ok := f.definitions.Get(jobName)
	if !ok {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("指定された Job '%s' の JSL 定義が見つかりません", jobName), nil)
	}
	if jslJob.Incrementer.Ref == "" {
		return nil, nil
	}
	builder, err := f.converter.Registry.Incrementer(jslJob.Incrementer.Ref)
	if err != nil {
		return nil, err
	}
	inc, err := builder(jslJob.Incrementer.Properties)
	if err != nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("JobParametersIncrementer '%s' のビルドに失敗しました", jslJob.Incrementer.Ref), err)
	}
	return inc, nil
}
