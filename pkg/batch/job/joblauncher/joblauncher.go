package joblauncher

import (
	"context"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// JobLauncher は Job を JobParameters とともに起動するためのインターフェースです。
type JobLauncher interface {
	// Launch は job を params とともに起動し、終了状態になった JobExecution を返します。
	// ここで返されるエラーは起動処理自体のエラーです。ジョブの失敗は JobExecution の状態で表されます。
	Launch(ctx context.Context, job core.Job, params core.JobParameters, opts ...LaunchOption) (*core.JobExecution, error)
}

type launchOptions struct {
	incrementer core.JobParametersIncrementer
}

// LaunchOption は Launch のオプションです。
type LaunchOption func(*launchOptions)

// WithIncrementer は起動前に JobParameters を進める JobParametersIncrementer を指定します。
// 同じパラメータの JobInstance が既に存在する場合は、存在しないパラメータになるまで進めます。
func WithIncrementer(incrementer core.JobParametersIncrementer) LaunchOption {
	return func(o *launchOptions) {
		o.incrementer = incrementer
	}
}
