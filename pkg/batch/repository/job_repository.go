package repository

import (
	"context"
	"errors"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// ErrNotFound は ID で指定したレコードが存在しないことを示します。
var ErrNotFound = errors.New("not found")

// JobInstanceRepository は JobInstance の永続化と取得に関する操作を定義します。
type JobInstanceRepository interface {
	// SaveJobInstance は新しい JobInstance を永続化します。
	SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error
	// FindJobInstanceByJobNameAndParameters はジョブ名と JobParameters に一致する JobInstance を返します。
	// 見つからない場合は nil, nil を返します。
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error)
	FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error)
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)
	GetJobNames(ctx context.Context) ([]string, error)
}

// JobExecutionRepository は JobExecution の永続化と取得に関する操作を定義します。
type JobExecutionRepository interface {
	SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error
	UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error
	FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error)
	// FindLatestJobExecution は JobInstance の最新の JobExecution を返します。見つからない場合は nil, nil です。
	FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error)
	FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error)
}

// StepExecutionRepository は StepExecution の永続化と取得に関する操作を定義します。
type StepExecutionRepository interface {
	SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error
	UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error
	FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error)
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error)
}

// JobRepository はバッチ実行に関するメタデータを永続化・管理するためのインターフェースです。
// Split のブランチから並行に呼び出されるため、実装はゴルーチンセーフである必要があります。
type JobRepository interface {
	JobInstanceRepository
	JobExecutionRepository
	StepExecutionRepository

	// Close はリポジトリが使用するリソースを解放します。
	Close() error
}
