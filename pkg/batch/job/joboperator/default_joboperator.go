package joboperator

import (
	"context"
	"fmt"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/joblauncher"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const module = "job_operator"

// JobProvider はジョブ名から Job を生成します。factory.JobFactory が満たします。
type JobProvider interface {
	CreateJob(jobName string) (core.Job, error)
	GetJobParametersIncrementer(jobName string) (core.JobParametersIncrementer, error)
}

// StoppableLauncher は実行中のジョブを停止できる JobLauncher です。
type StoppableLauncher interface {
	joblauncher.JobLauncher
	Stop(executionID string) error
}

// DefaultJobOperator は JobOperator インターフェースのデフォルト実装です。
type DefaultJobOperator struct {
	jobRepository repository.JobRepository
	jobProvider   JobProvider
	launcher      StoppableLauncher
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator は新しい DefaultJobOperator のインスタンスを作成します。
func NewDefaultJobOperator(jobRepository repository.JobRepository, jobProvider JobProvider, launcher StoppableLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobProvider:   jobProvider,
		launcher:      launcher,
	}
}

func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	logger.Infof("JobOperator: ジョブ '%s' を起動します。", jobName)
	job, err := o.jobProvider.CreateJob(jobName)
	if err != nil {
		return nil, err
	}
	var opts []joblauncher.LaunchOption
	inc, err := o.jobProvider.GetJobParametersIncrementer(jobName)
	if err != nil {
		return nil, err
	}
	if inc != nil {
		opts = append(opts, joblauncher.WithIncrementer(inc))
	}
	return o.launcher.Launch(ctx, job, params, opts...)
}

func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*core.JobExecution, error) {
	logger.Infof("JobOperator: JobExecution (ID: %s) を再実行します。", executionID)
	prev, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("再実行エラー: JobExecution (ID: %s) のロードに失敗しました", executionID), err)
	}
	if prev.Status != core.BatchStatusFailed && prev.Status != core.BatchStatusStopped {
		return nil, exception.NewBatchErrorf(module, "再実行エラー: JobExecution (ID: %s) は再実行できる状態ではありません (現在の状態: %s)", executionID, prev.Status)
	}

	job, err := o.jobProvider.CreateJob(prev.JobName)
	if err != nil {
		return nil, err
	}
	// インクリメンタは使わず、前回と同じ JobParameters で同じ JobInstance を再実行します。
	return o.launcher.Launch(ctx, job, prev.Parameters)
}

func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: JobExecution (ID: %s) を停止します。", executionID)
	if err := o.launcher.Stop(executionID); err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("停止エラー: JobExecution (ID: %s) は実行中ではありません", executionID), err)
	}
	return nil
}

func (o *DefaultJobOperator) GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error) {
	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の取得に失敗しました", executionID), err)
	}
	return je, nil
}

func (o *DefaultJobOperator) GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error) {
	ji, err := o.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err)
	}
	executions, err := o.jobRepository.FindJobExecutionsByJobInstance(ctx, ji)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) に関連する JobExecution の取得に失敗しました", instanceID), err)
	}
	logger.Debugf("JobInstance (ID: %s) に関連する %d 件の JobExecution を取得しました。", instanceID, len(executions))
	return executions, nil
}

// GetLastJobExecution は JobInstance の最新の JobExecution を返します。実行がない場合は nil, nil です。
func (o *DefaultJobOperator) GetLastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error) {
	je, err := o.jobRepository.FindLatestJobExecution(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の最新 JobExecution の取得に失敗しました", instanceID), err)
	}
	return je, nil
}

func (o *DefaultJobOperator) GetJobInstance(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	ji, err := o.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err)
	}
	return ji, nil
}

// GetJobInstances はジョブ名と JobParameters に一致する JobInstance を返します。
// JobInstance はこの組で一意なので、結果は 0 件か 1 件です。
func (o *DefaultJobOperator) GetJobInstances(ctx context.Context, jobName string, params core.JobParameters) ([]*core.JobInstance, error) {
	ji, err := o.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (JobName: %s, Parameters: %s) の検索に失敗しました", jobName, params), err)
	}
	if ji == nil {
		return []*core.JobInstance{}, nil
	}
	return []*core.JobInstance{ji}, nil
}

func (o *DefaultJobOperator) GetJobNames(ctx context.Context) ([]string, error) {
	names, err := o.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError(module, "ジョブ名の取得に失敗しました", err)
	}
	return names, nil
}

func (o *DefaultJobOperator) GetParameters(ctx context.Context, executionID string) (core.JobParameters, error) {
	je, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return core.NewJobParameters(nil), exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の取得に失敗しました", executionID), err)
	}
	return je.Parameters, nil
}
