package joblauncher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const module = "job_launcher"

// maxIncrements は既存の JobInstance を避けるために JobParameters を進める回数の上限です。
const maxIncrements = 1000

type activeExecution struct {
	instanceID string
	cancel     context.CancelFunc
}

// SimpleJobLauncher は JobLauncher インターフェースのシンプルな実装です。
// JobExecution の基本的なライフサイクル管理と JobRepository を使用した永続化を行います。
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository

	mu     sync.Mutex
	active map[string]activeExecution
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
func NewSimpleJobLauncher(jobRepository repository.JobRepository) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository: jobRepository,
		active:        make(map[string]activeExecution),
	}
}

// Launch は job を起動し、終了するまで待ちます。
//
// JobParameters の検証はリポジトリへの書き込みやステップの実行より前に行い、
// 不足しているパラメータがあれば ConfigurationError を返して何も実行しません。
// ジョブ名と JobParameters が同じ JobInstance が既に存在する場合、その JobInstance の新しい JobExecution として実行します。
func (l *SimpleJobLauncher) Launch(ctx context.Context, job core.Job, params core.JobParameters, opts ...LaunchOption) (*core.JobExecution, error) {
	if job == nil {
		return nil, exception.NewConfigurationError(module, "起動するジョブが nil です", nil)
	}
	var o launchOptions
	for _, opt := range opts {
		opt(&o)
	}
	jobName := job.JobName()
	logger.Infof("Job '%s' を起動します。Parameters: %s", jobName, params)

	if o.incrementer != nil {
		params = o.incrementer.GetNext(params)
	}
	if err := job.ValidateParameters(params); err != nil {
		logger.Errorf("Job '%s': JobParameters のバリデーションに失敗しました: %v", jobName, err)
		return nil, exception.WithKind(err, exception.KindConfiguration, module, "JobParameters のバリデーションエラー")
	}

	jobInstance, err := l.findOrCreateInstance(ctx, jobName, params, o.incrementer)
	if err != nil {
		return nil, err
	}
	if l.isInstanceRunning(jobInstance.ID) {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) は既に実行中です", jobInstance.ID), nil)
	}

	jobExecution := core.NewJobExecution(jobInstance.ID, jobName, jobInstance.Parameters)
	jobCtx, cancel := context.WithCancel(ctx)
	jobExecution.CancelFunc = cancel
	l.register(jobExecution.ID, jobInstance.ID, cancel)
	defer l.unregister(jobExecution.ID)

	// メタデータの書き込みは停止シグナルの後でも行えるようにキャンセルから切り離します。
	repoCtx := context.WithoutCancel(ctx)
	if err := l.jobRepository.SaveJobExecution(repoCtx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の初期永続化に失敗しました: %v", jobExecution.ID, err)
		return jobExecution, exception.NewBatchError(module, "起動処理エラー: JobExecution の初期保存に失敗しました", err)
	}

	jobExecution.MarkAsStarted()
	if err := l.jobRepository.UpdateJobExecution(repoCtx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Started 状態への更新に失敗しました: %v", jobExecution.ID, err)
	}

	logger.Infof("Job '%s' (Execution ID: %s, Job Instance ID: %s) を実行します。", jobName, jobExecution.ID, jobInstance.ID)
	if runErr := job.Run(jobCtx, jobExecution); runErr != nil {
		logger.Errorf("Job '%s' (Execution ID: %s) は失敗しました: %v", jobName, jobExecution.ID, runErr)
	}

	if err := l.jobRepository.UpdateJobExecution(repoCtx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の最終状態の更新に失敗しました: %v", jobExecution.ID, err)
		jobExecution.AddFailureException(exception.NewBatchError(module, "JobExecution 最終状態更新エラー", err))
	}
	return jobExecution, nil
}

// findOrCreateInstance はジョブ名と JobParameters に対応する JobInstance を返します。
// incrementer がある場合は、既存の JobInstance と重ならないパラメータの新しい JobInstance を作成します。
func (l *SimpleJobLauncher) findOrCreateInstance(ctx context.Context, jobName string, params core.JobParameters, incrementer core.JobParametersIncrementer) (*core.JobInstance, error) {
	for i := 0; ; i++ {
		existing, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
		if err != nil {
			return nil, exception.NewBatchError(module, "起動処理エラー: JobInstance の検索に失敗しました", err)
		}
		if existing == nil {
			break
		}
		if incrementer == nil {
			logger.Infof("既存の JobInstance (ID: %s, JobName: %s) を使用します。", existing.ID, existing.JobName)
			return existing, nil
		}
		if i >= maxIncrements {
			return nil, exception.NewBatchError(module, fmt.Sprintf("Job '%s': 未使用の JobParameters が見つかりませんでした", jobName), nil)
		}
		params = incrementer.GetNext(params)
	}

	jobInstance := core.NewJobInstance(jobName, params)
	if err := l.jobRepository.SaveJobInstance(ctx, jobInstance); err != nil {
		return nil, exception.NewBatchError(module, "起動処理エラー: 新しい JobInstance の保存に失敗しました", err)
	}
	logger.Infof("新しい JobInstance (ID: %s, JobName: %s, Parameters: %s) を作成しました。", jobInstance.ID, jobName, params)
	return jobInstance, nil
}

func (l *SimpleJobLauncher) register(executionID, instanceID string, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[executionID] = activeExecution{instanceID: instanceID, cancel: cancel}
}

func (l *SimpleJobLauncher) unregister(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.active[executionID]; ok {
		a.cancel()
		delete(l.active, executionID)
	}
}

func (l *SimpleJobLauncher) isInstanceRunning(instanceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.active {
		if a.instanceID == instanceID {
			return true
		}
	}
	return false
}

// Stop は実行中の JobExecution に停止シグナルを送ります。
// 実行中のチャンクはコミットまで進み、次のチャンクの前でステップが停止します。
func (l *SimpleJobLauncher) Stop(executionID string) error {
	l.mu.Lock()
	a, ok := l.active[executionID]
	l.mu.Unlock()
	if !ok {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) は実行中ではありません", executionID), repository.ErrNotFound)
	}
	logger.Warnf("JobExecution (ID: %s) に停止シグナルを送ります。", executionID)
	a.cancel()
	return nil
}

// ActiveExecutions は実行中の JobExecution の ID をソートして返します。
func (l *SimpleJobLauncher) ActiveExecutions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
