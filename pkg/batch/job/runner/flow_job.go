package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// 終了コードです。停止は SIGINT による終了と同じ 130 を使います。
const (
	ExitCodeCompleted = 0
	ExitCodeFailed    = 1
	ExitCodeStopped   = 130
)

// FlowJob はフローに基づいてステップを実行する core.Job の実装です。
type FlowJob struct {
	name          string
	flow          *core.Flow
	jobRepository repository.JobRepository
	jobListeners  []core.JobExecutionListener
}

// FlowJob が core.Job インターフェースを満たすことを確認します。
var _ core.Job = (*FlowJob)(nil)

// NewFlowJob は新しい FlowJob のインスタンスを作成します。
// フローの構造が不正な場合は ConfigurationError を返します。
// jobRepository が nil の場合はインメモリのリポジトリを使います。
func NewFlowJob(name string, flow *core.Flow, jobRepository repository.JobRepository, jobListeners ...core.JobExecutionListener) (*FlowJob, error) {
	if name == "" {
		return nil, exception.NewConfigurationError("job", "ジョブ名が空です", nil)
	}
	if err := flow.Validate(); err != nil {
		return nil, exception.NewConfigurationError("job", fmt.Sprintf("ジョブ '%s' のフローが不正です", name), err)
	}
	if jobRepository == nil {
		jobRepository = repository.NewInMemoryJobRepository()
	}
	return &FlowJob{
		name:          name,
		flow:          flow,
		jobRepository: jobRepository,
		jobListeners:  jobListeners,
	}, nil
}

// JobName はジョブ名を返します。
func (j *FlowJob) JobName() string {
	return j.name
}

// Flow はジョブのフローを返します。
func (j *FlowJob) Flow() *core.Flow {
	return j.flow
}

// ValidateParameters はフロー内のステップが参照するパラメータがすべて揃っているかを検証します。
// 不足しているパラメータはまとめて一つの ConfigurationError として報告します。
func (j *FlowJob) ValidateParameters(params core.JobParameters) error {
	missing := params.Missing(j.flow.RequiredParameters())
	if len(missing) == 0 {
		return nil
	}
	quoted := make([]string, len(missing))
	for i, name := range missing {
		quoted[i] = "'" + name + "'"
	}
	return exception.NewConfigurationError("job",
		fmt.Sprintf("ジョブ '%s': JobParameters に %s がありません", j.name, strings.Join(quoted, ", ")),
		exception.ErrMissingParameter)
}

func (j *FlowJob) notifyBeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *FlowJob) notifyAfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run はフローを実行し、ステップの結果から jobExecution の終了状態を決めます。
//
// すべてのステップが COMPLETED の場合だけジョブは COMPLETED になり、それ以外は FAILED です。
// 失敗がなく停止だけが原因の場合、ExitStatus は STOPPED になります。
// 失敗したステップがある場合はその原因をまとめたエラーを返します。
func (j *FlowJob) Run(ctx context.Context, jobExecution *core.JobExecution) error {
	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。", j.name, jobExecution.ID)
	j.notifyBeforeJob(ctx, jobExecution)
	defer func() {
		j.notifyAfterJob(context.WithoutCancel(ctx), jobExecution)
		logger.Infof("ジョブ '%s' (Execution ID: %s) が終了しました。ステータス: %s, 終了ステータス: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	j.runFlow(ctx, jobExecution, j.flow)
	return j.finish(jobExecution)
}

// runFlow はフローノードを実行し、その結果の状態を返します。
func (j *FlowJob) runFlow(ctx context.Context, jobExecution *core.JobExecution, f *core.Flow) core.JobStatus {
	switch f.Kind() {
	case core.FlowKindStep:
		return j.runStep(ctx, jobExecution, f.Step())

	case core.FlowKindSequential:
		for _, child := range f.Children() {
			if status := j.runFlow(ctx, jobExecution, child); status != core.BatchStatusCompleted {
				logger.Warnf("ジョブ '%s': フロー '%s' の要素 '%s' が %s で終了したため、後続の要素を実行しません。",
					j.name, f.Name(), child.Name(), status)
				return status
			}
		}
		return core.BatchStatusCompleted

	case core.FlowKindSplit:
		branches := f.Children()
		statuses := make([]core.JobStatus, len(branches))
		var wg sync.WaitGroup
		for i, branch := range branches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				statuses[i] = j.runFlow(ctx, jobExecution, branch)
			}()
		}
		wg.Wait()
		return aggregate(statuses)

	default:
		err := exception.NewConfigurationError("job", fmt.Sprintf("フロー '%s' の種類 %s は実行できません", f.Name(), f.Kind()), exception.ErrInvalidFlow)
		jobExecution.AddFailureException(err)
		return core.BatchStatusFailed
	}
}

// runStep はステップを一つ実行し、StepExecution を記録します。
// リポジトリへの書き込みは停止シグナルの後でも行えるようにキャンセルから切り離します。
func (j *FlowJob) runStep(ctx context.Context, jobExecution *core.JobExecution, step core.Step) core.JobStatus {
	repoCtx := context.WithoutCancel(ctx)
	se := core.NewStepExecution(step.StepName(), jobExecution)
	jobExecution.AddStepExecution(se)

	if err := j.jobRepository.SaveStepExecution(repoCtx, se); err != nil {
		logger.Errorf("ジョブ '%s': StepExecution '%s' の保存に失敗しました: %v", j.name, se.StepName, err)
		se.MarkAsFailed(err)
		return se.Status
	}

	err := step.Execute(ctx, jobExecution, se)
	if !se.Status.IsFinished() {
		if err != nil {
			se.MarkAsFailed(err)
		} else {
			se.MarkAsCompleted()
		}
	}

	if uerr := j.jobRepository.UpdateStepExecution(repoCtx, se); uerr != nil {
		logger.Errorf("ジョブ '%s': StepExecution '%s' の更新に失敗しました: %v", j.name, se.StepName, uerr)
	}
	return se.Status
}

// finish はステップの結果を集約して jobExecution を終了状態にします。
func (j *FlowJob) finish(jobExecution *core.JobExecution) error {
	allCompleted, anyFailed, anyStopped := true, false, false
	var causes []error
	for _, step := range j.flow.Steps() {
		se, ok := jobExecution.StepExecution(step.StepName())
		if !ok {
			allCompleted = false
			continue
		}
		switch se.Status {
		case core.BatchStatusCompleted:
		case core.BatchStatusStopped:
			allCompleted, anyStopped = false, true
		default:
			allCompleted, anyFailed = false, true
			causes = append(causes, se.Failures...)
		}
	}

	switch {
	case allCompleted:
		jobExecution.MarkAsCompleted()
		jobExecution.ExitCode = ExitCodeCompleted
		return nil
	case anyStopped && !anyFailed:
		jobExecution.MarkAsFailed(nil)
		jobExecution.ExitStatus = core.ExitStatusStopped
		jobExecution.ExitCode = ExitCodeStopped
		return nil
	default:
		for _, cause := range causes {
			jobExecution.AddFailureException(cause)
		}
		jobExecution.MarkAsFailed(nil)
		jobExecution.ExitCode = ExitCodeFailed
		if len(jobExecution.Failures) == 0 {
			return exception.NewBatchError("job", fmt.Sprintf("ジョブ '%s' は失敗しました", j.name), nil)
		}
		return errors.Join(jobExecution.Failures...)
	}
}

// aggregate は Split のブランチの結果を一つにまとめます。
// 一つでも FAILED があれば FAILED、次に STOPPED があれば STOPPED です。
func aggregate(statuses []core.JobStatus) core.JobStatus {
	result := core.BatchStatusCompleted
	for _, s := range statuses {
		switch s {
		case core.BatchStatusCompleted:
		case core.BatchStatusStopped:
			if result == core.BatchStatusCompleted {
				result = core.BatchStatusStopped
			}
		default:
			return core.BatchStatusFailed
		}
	}
	return result
}
