package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

// InMemoryJobRepository はプロセス内のマップにメタデータを保持する JobRepository です。
// データベースを使わないジョブやテストで使います。
type InMemoryJobRepository struct {
	mu         sync.RWMutex
	instances  map[string]*core.JobInstance
	executions map[string]*core.JobExecution
	steps      map[string]*core.StepExecution
	// order は JobExecution の保存順です。
	order []string
}

// NewInMemoryJobRepository は空の InMemoryJobRepository を作成します。
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		instances:  make(map[string]*core.JobInstance),
		executions: make(map[string]*core.JobExecution),
		steps:      make(map[string]*core.StepExecution),
	}
}

func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ji := range r.instances {
		if ji.JobName == jobInstance.JobName && ji.ParametersHash == jobInstance.ParametersHash {
			return exception.NewBatchError(module, fmt.Sprintf("JobInstance (JobName: %s, Parameters: %s) は既に存在します", jobInstance.JobName, jobInstance.Parameters), nil)
		}
	}
	r.instances[jobInstance.ID] = jobInstance
	return nil
}

func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hash := params.Hash()
	for _, ji := range r.instances {
		if ji.JobName == jobName && ji.ParametersHash == hash {
			return ji, nil
		}
	}
	return nil, nil
}

func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ji, ok := r.instances[instanceID]
	if !ok {
		return nil, notFound("JobInstance", instanceID)
	}
	return ji, nil
}

func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ji := range r.instances {
		if ji.JobName == jobName {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var names []string
	for _, ji := range r.instances {
		if _, ok := seen[ji.JobName]; !ok {
			seen[ji.JobName] = struct{}{}
			names = append(names, ji.JobName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executions[jobExecution.ID]; ok {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) は既に保存されています", jobExecution.ID), nil)
	}
	r.executions[jobExecution.ID] = jobExecution
	r.order = append(r.order, jobExecution.ID)
	return nil
}

func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executions[jobExecution.ID]; !ok {
		return notFound("JobExecution", jobExecution.ID)
	}
	jobExecution.Version++
	r.executions[jobExecution.ID] = jobExecution
	return nil
}

func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	je, ok := r.executions[executionID]
	if !ok {
		return nil, notFound("JobExecution", executionID)
	}
	return je, nil
}

func (r *InMemoryJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	executions := r.byInstance(jobInstanceID)
	if len(executions) == 0 {
		return nil, nil
	}
	return executions[0], nil
}

func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error) {
	return r.byInstance(jobInstance.ID), nil
}

// byInstance は JobInstance の JobExecution を新しい順に返します。
func (r *InMemoryJobRepository) byInstance(jobInstanceID string) []*core.JobExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var executions []*core.JobExecution
	for i := len(r.order) - 1; i >= 0; i-- {
		je := r.executions[r.order[i]]
		if je.JobInstanceID == jobInstanceID {
			executions = append(executions, je)
		}
	}
	return executions
}

func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[stepExecution.ID]; ok {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) は既に保存されています", stepExecution.ID), nil)
	}
	r.steps[stepExecution.ID] = stepExecution
	return nil
}

func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[stepExecution.ID]; !ok {
		return notFound("StepExecution", stepExecution.ID)
	}
	stepExecution.Version++
	r.steps[stepExecution.ID] = stepExecution
	return nil
}

func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	se, ok := r.steps[executionID]
	if !ok {
		return nil, notFound("StepExecution", executionID)
	}
	return se, nil
}

func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var steps []*core.StepExecution
	for _, se := range r.steps {
		if se.JobExecution != nil && se.JobExecution.ID == jobExecutionID {
			steps = append(steps, se)
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StartTime.Equal(steps[j].StartTime) {
			return steps[i].StepName < steps[j].StepName
		}
		return steps[i].StartTime.Before(steps[j].StartTime)
	})
	return steps, nil
}

// Close は何もしません。
func (r *InMemoryJobRepository) Close() error { return nil }

func notFound(entity, id string) error {
	return exception.NewBatchError(module, fmt.Sprintf("%s (ID: %s) が見つかりませんでした", entity, id), ErrNotFound)
}

var _ JobRepository = (*InMemoryJobRepository)(nil)
