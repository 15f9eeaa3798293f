package joboperator

import (
	"context"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// JobOperator はジョブ名による起動と、実行の停止、再実行、参照を行うためのインターフェースです。
type JobOperator interface {
	// Start はジョブ名で Job を生成し、params とともに起動します。
	Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)

	// Restart は FAILED または STOPPED で終了した JobExecution と同じ JobParameters で、
	// 同じ JobInstance の新しい JobExecution を起動します。
	Restart(ctx context.Context, executionID string) (*core.JobExecution, error)

	// Stop は実行中の JobExecution に停止を通知します。次のチャンク境界で停止します。
	Stop(ctx context.Context, executionID string) error

	GetJobExecution(ctx context.Context, executionID string) (*core.JobExecution, error)
	GetJobExecutions(ctx context.Context, instanceID string) ([]*core.JobExecution, error)
	GetLastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error)
	GetJobInstance(ctx context.Context, instanceID string) (*core.JobInstance, error)
	GetJobInstances(ctx context.Context, jobName string, params core.JobParameters) ([]*core.JobInstance, error)

	// GetJobNames は一度でも実行されたジョブ名を返します。
	GetJobNames(ctx context.Context) ([]string, error)

	GetParameters(ctx context.Context, executionID string) (core.JobParameters, error)
}
