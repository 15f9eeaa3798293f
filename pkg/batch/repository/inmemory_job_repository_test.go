package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

func TestInMemoryJobRepository_JobInstances(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := t.Context()
	params := core.NewJobParameters(map[string]string{"run.id": "1"})

	ji := core.NewJobInstance("job", params)
	require.NoError(t, repo.SaveJobInstance(ctx, ji))
	assert.Error(t, repo.SaveJobInstance(ctx, core.NewJobInstance("job", params)), "同じジョブ名とパラメータの JobInstance は一つだけ")
	require.NoError(t, repo.SaveJobInstance(ctx, core.NewJobInstance("another", params)))

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, "job", core.NewJobParameters(map[string]string{"run.id": "1"}))
	require.NoError(t, err)
	assert.Same(t, ji, found)

	found, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "job", params.With("run.id", "2"))
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = repo.FindJobInstanceByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"another", "job"}, names)

	count, err := repo.GetJobInstanceCount(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInMemoryJobRepository_Executions(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := t.Context()
	ji := core.NewJobInstance("job", core.NewJobParameters(nil))
	require.NoError(t, repo.SaveJobInstance(ctx, ji))

	first := core.NewJobExecution(ji.ID, ji.JobName, ji.Parameters)
	second := core.NewJobExecution(ji.ID, ji.JobName, ji.Parameters)
	require.NoError(t, repo.SaveJobExecution(ctx, first))
	require.NoError(t, repo.SaveJobExecution(ctx, second))
	assert.Error(t, repo.SaveJobExecution(ctx, first))

	latest, err := repo.FindLatestJobExecution(ctx, ji.ID)
	require.NoError(t, err)
	assert.Same(t, second, latest)

	all, err := repo.FindJobExecutionsByJobInstance(ctx, ji)
	require.NoError(t, err)
	assert.Equal(t, []*core.JobExecution{second, first}, all)

	require.NoError(t, repo.UpdateJobExecution(ctx, first))
	assert.Equal(t, 1, first.Version)
	assert.ErrorIs(t, repo.UpdateJobExecution(ctx, core.NewJobExecution(ji.ID, "job", ji.Parameters)), ErrNotFound)

	latest, err = repo.FindLatestJobExecution(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestInMemoryJobRepository_ConcurrentStepExecutions(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := t.Context()
	je := core.NewJobExecution("ji", "job", core.NewJobParameters(nil))
	require.NoError(t, repo.SaveJobExecution(ctx, je))

	base := time.Now()
	var wg sync.WaitGroup
	for i, name := range []string{"step1", "step2", "step3", "step4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			se := core.NewStepExecution(name, je)
			se.StartTime = base.Add(time.Duration(i) * time.Millisecond)
			assert.NoError(t, repo.SaveStepExecution(ctx, se))
			se.MarkAsCompleted()
			assert.NoError(t, repo.UpdateStepExecution(ctx, se))
		}()
	}
	wg.Wait()

	steps, err := repo.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	for i, se := range steps {
		assert.Equal(t, []string{"step1", "step2", "step3", "step4"}[i], se.StepName)
		assert.Equal(t, core.BatchStatusCompleted, se.Status)
		assert.Equal(t, 1, se.Version)
	}

	found, err := repo.FindStepExecutionByID(ctx, steps[0].ID)
	require.NoError(t, err)
	assert.Same(t, steps[0], found)
}

func TestNewJobRepository(t *testing.T) {
	assert.IsType(t, &InMemoryJobRepository{}, NewJobRepository(config.DatabaseConfig{Type: "memory"}, nil))
	assert.IsType(t, &InMemoryJobRepository{}, NewJobRepository(config.DatabaseConfig{Type: "postgres"}, nil))
}
