package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// JobStatus はジョブ実行およびステップ実行の状態を表します。
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusStopping  JobStatus = "STOPPING"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// IsFinished は JobStatus が終了状態かどうかを判定するヘルパーメソッドです。
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped:
		return true
	default:
		return false
	}
}

// ToExitStatus は JobStatus を対応する ExitStatus に変換します。
func (s JobStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped:
		return ExitStatusStopped
	default:
		return ExitStatusUnknown
	}
}

// ExitStatus はジョブ/ステップの終了時の詳細なステータスを表します。
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusNoOp      ExitStatus = "NO_OP"
)

// ExecutionContext はジョブやステップの状態を共有するためのキー-値ストアです。
type ExecutionContext map[string]interface{}

// NewExecutionContext は空の ExecutionContext を作成します。
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put は値を設定します。
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get は値を取得します。
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// FailureDetail はステップ失敗の原因となったエラーの分類とメッセージです。
type FailureDetail struct {
	Kind    exception.ErrorKind `json:"kind"`
	Message string              `json:"message"`
}

// NewFailureDetail はエラーから FailureDetail を作成します。
func NewFailureDetail(err error) FailureDetail {
	return FailureDetail{Kind: exception.KindOf(err), Message: err.Error()}
}

// JobInstance はジョブの論理的な実行単位を表す構造体です。
// ジョブ名と JobParameters の組で一意になります。
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance は新しい JobInstance を作成します。
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	return &JobInstance{
		ID:             uuid.NewString(),
		JobName:        jobName,
		Parameters:     params,
		ParametersHash: params.Hash(),
		CreateTime:     time.Now(),
	}
}

// JobExecution はジョブの単一の実行インスタンスを表す構造体です。
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	ExitCode         int
	Failures         []error
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext ExecutionContext
	CancelFunc       context.CancelFunc

	mu             sync.Mutex
	stepExecutions []*StepExecution
}

// NewJobExecution は新しい JobExecution を作成します。
func NewJobExecution(jobInstanceID, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               uuid.NewString(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		ExecutionContext: NewExecutionContext(),
	}
}

// MarkAsStarted はジョブ実行を開始状態にします。
func (je *JobExecution) MarkAsStarted() {
	je.Status = BatchStatusStarted
	je.StartTime = time.Now()
	je.LastUpdated = je.StartTime
}

// MarkAsCompleted はジョブ実行を完了状態にします。
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed はジョブ実行を失敗状態にします。
func (je *JobExecution) MarkAsFailed(err error) {
	if err != nil {
		je.AddFailureException(err)
	}
	je.finish(BatchStatusFailed, ExitStatusFailed)
}

// MarkAsStopped はジョブ実行を停止状態にします。
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped, ExitStatusStopped)
}

func (je *JobExecution) finish(status JobStatus, exitStatus ExitStatus) {
	je.Status = status
	je.ExitStatus = exitStatus
	je.EndTime = time.Now()
	je.LastUpdated = je.EndTime
}

// AddFailureException はジョブ実行に失敗原因を追加します。
func (je *JobExecution) AddFailureException(err error) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.Failures = append(je.Failures, err)
}

// AddStepExecution はステップ実行を追加します。Split の各ブランチから並行に呼ばれます。
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.stepExecutions = append(je.stepExecutions, se)
}

// StepExecutions はステップ実行のスナップショットを返します。
func (je *JobExecution) StepExecutions() []*StepExecution {
	je.mu.Lock()
	defer je.mu.Unlock()
	out := make([]*StepExecution, len(je.stepExecutions))
	copy(out, je.stepExecutions)
	return out
}

// StepExecution は指定されたステップ名の実行を返します。
func (je *JobExecution) StepExecution(stepName string) (*StepExecution, bool) {
	je.mu.Lock()
	defer je.mu.Unlock()
	for _, se := range je.stepExecutions {
		if se.StepName == stepName {
			return se, true
		}
	}
	return nil, false
}

// StepStatuses はステップ名ごとの終了状態を返します。
func (je *JobExecution) StepStatuses() map[string]JobStatus {
	statuses := make(map[string]JobStatus)
	for _, se := range je.StepExecutions() {
		statuses[se.StepName] = se.Status
	}
	return statuses
}

// StepExecution はステップの単一の実行インスタンスを表す構造体です。
// Status は STARTING/STARTED から終了状態へ一度だけ遷移します。
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	StartTime        time.Time
	EndTime          time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         []error
	ReadCount        int
	WriteCount       int
	FilterCount      int
	CommitCount      int
	RollbackCount    int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStepExecution は新しい StepExecution を作成します。
func NewStepExecution(stepName string, jobExecution *JobExecution) *StepExecution {
	return &StepExecution{
		ID:               uuid.NewString(),
		StepName:         stepName,
		JobExecution:     jobExecution,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      time.Now(),
	}
}

// MarkAsStarted はステップ実行を開始状態にします。
func (se *StepExecution) MarkAsStarted() {
	if se.Status.IsFinished() {
		return
	}
	se.Status = BatchStatusStarted
	se.StartTime = time.Now()
	se.LastUpdated = se.StartTime
}

// MarkAsCompleted はステップ実行を完了状態にします。
func (se *StepExecution) MarkAsCompleted() bool {
	return se.finish(BatchStatusCompleted, nil)
}

// MarkAsFailed はステップ実行を失敗状態にします。
func (se *StepExecution) MarkAsFailed(err error) bool {
	return se.finish(BatchStatusFailed, err)
}

// MarkAsStopped はステップ実行を停止状態にします。
func (se *StepExecution) MarkAsStopped() bool {
	return se.finish(BatchStatusStopped, nil)
}

// finish は終了状態を一度だけ設定します。既に終了している場合は false を返します。
func (se *StepExecution) finish(status JobStatus, err error) bool {
	if se.Status.IsFinished() {
		logger.Warnf("ステップ '%s' は既に %s で終了しています。%s への変更は無視します。", se.StepName, se.Status, status)
		return false
	}
	if err != nil {
		se.Failures = append(se.Failures, err)
	}
	se.Status = status
	se.ExitStatus = status.ToExitStatus()
	se.EndTime = time.Now()
	se.LastUpdated = se.EndTime
	return true
}

// Failure は最初の失敗原因の分類とメッセージを返します。
func (se *StepExecution) Failure() (FailureDetail, bool) {
	if len(se.Failures) == 0 {
		return FailureDetail{}, false
	}
	return NewFailureDetail(se.Failures[0]), true
}
