package joboperator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/batchtest"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/incrementer"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/joblauncher"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/runner"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
)

type fakeProvider struct {
	step        *batchtest.FuncStep
	repo        repository.JobRepository
	incrementer core.JobParametersIncrementer
}

func (p *fakeProvider) CreateJob(jobName string) (core.Job, error) {
	if jobName != "importJob" {
		return nil, errors.New("unknown job " + jobName)
	}
	return runner.NewFlowJob(jobName, core.NewStepFlow(p.step), p.repo)
}

func (p *fakeProvider) GetJobParametersIncrementer(jobName string) (core.JobParametersIncrementer, error) {
	return p.incrementer, nil
}

func newOperator(step *batchtest.FuncStep, inc core.JobParametersIncrementer) (*DefaultJobOperator, repository.JobRepository) {
	repo := repository.NewInMemoryJobRepository()
	provider := &fakeProvider{step: step, repo: repo, incrementer: inc}
	return NewDefaultJobOperator(repo, provider, joblauncher.NewSimpleJobLauncher(repo)), repo
}

func TestDefaultJobOperator_StartWithIncrementer(t *testing.T) {
	op, _ := newOperator(&batchtest.FuncStep{Name: "load"}, incrementer.NewRunIDIncrementer(""))
	ctx := t.Context()
	params := core.NewJobParameters(map[string]string{"input": "a.csv"})

	first, err := op.Start(ctx, "importJob", params)
	require.NoError(t, err)
	second, err := op.Start(ctx, "importJob", params)
	require.NoError(t, err)

	assert.Equal(t, core.BatchStatusCompleted, first.Status)
	assert.Equal(t, "1", first.Parameters.GetString(incrementer.DefaultRunIDKey, ""))
	assert.Equal(t, "2", second.Parameters.GetString(incrementer.DefaultRunIDKey, ""))
	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)

	names, err := op.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"importJob"}, names)

	got, err := op.GetParameters(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Parameters.ToMap(), got.ToMap())

	instances, err := op.GetJobInstances(ctx, "importJob", first.Parameters)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, first.JobInstanceID, instances[0].ID)

	instances, err = op.GetJobInstances(ctx, "importJob", params)
	require.NoError(t, err)
	assert.Empty(t, instances)

	_, err = op.Start(ctx, "otherJob", params)
	assert.Error(t, err)
}

func TestDefaultJobOperator_Restart(t *testing.T) {
	step := &batchtest.FuncStep{Name: "load"}
	step.Run = func(ctx context.Context, se *core.StepExecution) (core.JobStatus, error) {
		if step.Calls() == 1 {
			return core.BatchStatusFailed, errors.New("connection reset")
		}
		return core.BatchStatusCompleted, nil
	}
	op, _ := newOperator(step, nil)
	ctx := t.Context()

	failed, err := op.Start(ctx, "importJob", core.NewJobParameters(map[string]string{"input": "a.csv"}))
	require.NoError(t, err)
	require.Equal(t, core.BatchStatusFailed, failed.Status)

	restarted, err := op.Restart(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)
	assert.NotEqual(t, failed.ID, restarted.ID)

	executions, err := op.GetJobExecutions(ctx, failed.JobInstanceID)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, restarted.ID, executions[0].ID)

	last, err := op.GetLastJobExecution(ctx, failed.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, restarted.ID, last.ID)

	ji, err := op.GetJobInstance(ctx, failed.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, "importJob", ji.JobName)

	_, err = op.Restart(ctx, restarted.ID)
	assert.Error(t, err, "a completed execution cannot be restarted")

	_, err = op.Restart(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDefaultJobOperator_StopAndLookups(t *testing.T) {
	op, _ := newOperator(&batchtest.FuncStep{Name: "load"}, nil)
	ctx := t.Context()

	err := op.Stop(ctx, "not-running")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = op.GetJobExecution(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = op.GetJobInstance(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = op.GetJobExecutions(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	last, err := op.GetLastJobExecution(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, last)
}
