package joblauncher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/batchtest"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/incrementer"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/joblauncher"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/runner"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/step"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

func newChunkJob(t *testing.T, repo repository.JobRepository, db *batchtest.FakeDB, records int) *runner.FlowJob {
	t.Helper()
	s := step.NewChunkStep[int, int]("step1", 100, db, func(params core.JobParameters) (step.Resources[int, int], error) {
		return step.Resources[int, int]{
			Reader: &batchtest.FailingReader[int]{Items: batchtest.Sequence(records)},
			Writer: &batchtest.TxWriter[int]{},
		}, nil
	}, step.WithRequiredParameters("inputFlatFile"))
	job, err := runner.NewFlowJob("importJob", core.NewStepFlow(s), repo)
	require.NoError(t, err)
	return job
}

func TestSimpleJobLauncher_MissingParameterHasNoSideEffects(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	db := batchtest.NewFakeDB()
	launcher := joblauncher.NewSimpleJobLauncher(repo)

	je, err := launcher.Launch(t.Context(), newChunkJob(t, repo, db, 250), core.NewJobParameters(map[string]string{"other": "x"}))

	require.Error(t, err)
	assert.Nil(t, je)
	assert.True(t, exception.IsConfigurationError(err))
	assert.ErrorIs(t, err, exception.ErrMissingParameter)
	assert.Equal(t, 0, db.Begun(), "ステップは実行されない")
	names, err := repo.GetJobNames(t.Context())
	require.NoError(t, err)
	assert.Empty(t, names, "JobInstance は作成されない")
}

func TestSimpleJobLauncher_Launch(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	db := batchtest.NewFakeDB()
	launcher := joblauncher.NewSimpleJobLauncher(repo)
	params := core.NewJobParameters(map[string]string{"inputFlatFile": "/data/csv/transactions.csv"})

	je, err := launcher.Launch(t.Context(), newChunkJob(t, repo, db, 250), params)

	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Equal(t, []int{100, 100, 50}, db.ChunkSizes())
	assert.False(t, je.StartTime.IsZero())
	assert.False(t, je.EndTime.IsZero())
	assert.Empty(t, launcher.ActiveExecutions())

	saved, err := repo.FindJobExecutionByID(t.Context(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, saved.Status)
	assert.Equal(t, 2, saved.Version, "開始時と終了時に更新される")

	ji, err := repo.FindJobInstanceByID(t.Context(), je.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, params.Hash(), ji.ParametersHash)
}

func TestSimpleJobLauncher_RelaunchReusesInstance(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	launcher := joblauncher.NewSimpleJobLauncher(repo)
	params := core.NewJobParameters(map[string]string{"inputFlatFile": "a.csv"})
	job := newChunkJob(t, repo, batchtest.NewFakeDB(), 10)

	first, err := launcher.Launch(t.Context(), job, params)
	require.NoError(t, err)
	second, err := launcher.Launch(t.Context(), job, params)
	require.NoError(t, err)

	assert.Equal(t, first.JobInstanceID, second.JobInstanceID)
	assert.NotEqual(t, first.ID, second.ID)
	count, err := repo.GetJobInstanceCount(t.Context(), "importJob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSimpleJobLauncher_IncrementerCreatesNewInstances(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	launcher := joblauncher.NewSimpleJobLauncher(repo)
	params := core.NewJobParameters(map[string]string{"inputFlatFile": "a.csv"})
	job := newChunkJob(t, repo, batchtest.NewFakeDB(), 10)
	inc := joblauncher.WithIncrementer(incrementer.NewRunIDIncrementer(""))

	first, err := launcher.Launch(t.Context(), job, params, inc)
	require.NoError(t, err)
	second, err := launcher.Launch(t.Context(), job, params, inc)
	require.NoError(t, err)

	assert.NotEqual(t, first.JobInstanceID, second.JobInstanceID)
	assert.Equal(t, "1", first.Parameters.GetString("run.id", ""))
	assert.Equal(t, "2", second.Parameters.GetString("run.id", ""))
}

func TestSimpleJobLauncher_FailedJobIsNotALaunchError(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	launcher := joblauncher.NewSimpleJobLauncher(repo)
	failing := &batchtest.FuncStep{Name: "step1", Run: func(context.Context, *core.StepExecution) (core.JobStatus, error) {
		return core.BatchStatusFailed, exception.NewReadError("reader", "読み込みに失敗しました", errors.New("EOF in tag"))
	}}
	job, err := runner.NewFlowJob("job", core.NewStepFlow(failing), repo)
	require.NoError(t, err)

	je, err := launcher.Launch(t.Context(), job, core.NewJobParameters(nil))

	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, je.Status)
	require.NotEmpty(t, je.Failures)
	assert.Equal(t, exception.KindRead, exception.KindOf(je.Failures[0]))
}

func TestSimpleJobLauncher_Stop(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	launcher := joblauncher.NewSimpleJobLauncher(repo)
	waiting := &batchtest.FuncStep{Name: "step1", Run: func(ctx context.Context, _ *core.StepExecution) (core.JobStatus, error) {
		<-ctx.Done()
		return core.BatchStatusStopped, nil
	}}
	job, err := runner.NewFlowJob("job", core.NewStepFlow(waiting), repo)
	require.NoError(t, err)

	done := make(chan *core.JobExecution, 1)
	go func() {
		je, err := launcher.Launch(t.Context(), job, core.NewJobParameters(nil))
		assert.NoError(t, err)
		done <- je
	}()

	require.Eventually(t, func() bool { return len(launcher.ActiveExecutions()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, launcher.Stop(launcher.ActiveExecutions()[0]))

	select {
	case je := <-done:
		assert.Equal(t, core.BatchStatusFailed, je.Status)
		assert.Equal(t, core.ExitStatusStopped, je.ExitStatus)
		assert.Equal(t, runner.ExitCodeStopped, je.ExitCode)
	case <-time.After(2 * time.Second):
		t.Fatal("停止シグナルの後もジョブが終了しない")
	}

	assert.ErrorIs(t, launcher.Stop("unknown"), repository.ErrNotFound)
}

func TestSimpleJobLauncher_NilJob(t *testing.T) {
	_, err := joblauncher.NewSimpleJobLauncher(repository.NewInMemoryJobRepository()).Launch(t.Context(), nil, core.NewJobParameters(nil))
	assert.True(t, exception.IsConfigurationError(err))
}
