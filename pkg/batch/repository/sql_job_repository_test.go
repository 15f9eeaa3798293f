package repository

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

func newMockRepository(t *testing.T, dialect database.Dialect) (*SQLJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLJobRepository(database.NewSQLDBAdapter(db), dialect), mock
}

func TestSQLJobRepository_SaveJobInstance(t *testing.T) {
	tests := []struct {
		dialect database.Dialect
		values  string
	}{
		{dialect: database.DialectPostgres, values: `VALUES ($1, $2, $3, $4, $5, $6)`},
		{dialect: database.DialectMySQL, values: `VALUES (?, ?, ?, ?, ?, ?)`},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			repo, mock := newMockRepository(t, tt.dialect)
			ji := core.NewJobInstance("parallelStepsJob", core.NewJobParameters(map[string]string{"inputFlatFile": "a.csv"}))

			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_job_instance") + ".*" + regexp.QuoteMeta(tt.values)).
				WithArgs(ji.ID, "parallelStepsJob", `{"inputFlatFile":"a.csv"}`, ji.ParametersHash, sqlmock.AnyArg(), 0).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, repo.SaveJobInstance(t.Context(), ji))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLJobRepository_FindJobInstanceByJobNameAndParameters(t *testing.T) {
	repo, mock := newMockRepository(t, database.DialectPostgres)
	params := core.NewJobParameters(map[string]string{"run.id": "3"})
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_instance WHERE job_name = $1 AND parameters_hash = $2")).
		WithArgs("job", params.Hash()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_name", "job_parameters", "create_time", "version"}).
			AddRow("ji-1", "job", `{"run.id":"3"}`, created, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_instance WHERE job_name = $1")).
		WithArgs("other", params.Hash()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_name", "job_parameters", "create_time", "version"}))

	ji, err := repo.FindJobInstanceByJobNameAndParameters(t.Context(), "job", params)
	require.NoError(t, err)
	require.NotNil(t, ji)
	assert.Equal(t, "ji-1", ji.ID)
	assert.Equal(t, "3", ji.Parameters.GetString("run.id", ""))
	assert.Equal(t, params.Hash(), ji.ParametersHash)

	ji, err = repo.FindJobInstanceByJobNameAndParameters(t.Context(), "other", params)
	require.NoError(t, err)
	assert.Nil(t, ji)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_UpdateJobExecution(t *testing.T) {
	repo, mock := newMockRepository(t, database.DialectPostgres)
	je := core.NewJobExecution("ji-1", "job", core.NewJobParameters(nil))
	je.MarkAsStarted()
	je.MarkAsFailed(exception.NewWriteError("writer", "書き込みに失敗しました", errors.New("duplicate key")))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_job_execution")).
		WithArgs("FAILED", "FAILED", 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 1, je.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_job_execution")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateJobExecution(t.Context(), je))
	assert.Equal(t, 1, je.Version)

	err := repo.UpdateJobExecution(t.Context(), je)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_FindJobExecutionByID(t *testing.T) {
	repo, mock := newMockRepository(t, database.DialectMySQL)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_execution WHERE id = ?")).
		WithArgs("je-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_instance_id", "job_name", "job_parameters", "status", "exit_status",
			"exit_code", "failures", "start_time", "end_time", "create_time", "last_updated", "version"}).
			AddRow("je-1", "ji-1", "job", `{"k":"v"}`, "FAILED", "STOPPED", 130,
				`[{"kind":"WriteError","message":"boom"}]`, now, now, now, now, 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_step_execution WHERE job_execution_id = ?")).
		WithArgs("je-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_execution_id", "step_name", "status", "exit_status", "failures",
			"read_count", "write_count", "filter_count", "commit_count", "rollback_count", "execution_context",
			"start_time", "end_time", "last_updated", "version"}).
			AddRow("se-1", "je-1", "step1", "COMPLETED", "COMPLETED", "[]", 250, 250, 0, 3, 0, `{}`, now, now, now, 1).
			AddRow("se-2", "je-1", "step2", "STOPPED", "STOPPED", "[]", 100, 100, 0, 1, 0, nil, now, nil, now, 1))

	je, err := repo.FindJobExecutionByID(t.Context(), "je-1")
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusFailed, je.Status)
	assert.Equal(t, core.ExitStatusStopped, je.ExitStatus)
	assert.Equal(t, "v", je.Parameters.GetString("k", ""))
	require.Len(t, je.Failures, 1)
	assert.Equal(t, exception.KindWrite, exception.KindOf(je.Failures[0]))

	steps := je.StepExecutions()
	require.Len(t, steps, 2)
	assert.Equal(t, 3, steps[0].CommitCount)
	assert.Same(t, je, steps[1].JobExecution)
	assert.True(t, steps[1].EndTime.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_FindJobExecutionByID_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t, database.DialectPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_job_execution WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindJobExecutionByID(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLJobRepository_SaveStepExecution(t *testing.T) {
	repo, mock := newMockRepository(t, database.DialectPostgres)
	je := core.NewJobExecution("ji-1", "job", core.NewJobParameters(nil))
	se := core.NewStepExecution("step1", je)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_step_execution")).
		WithArgs(se.ID, je.ID, "step1", "STARTING", "UNKNOWN", "[]", 0, 0, 0, 0, 0, "{}",
			nil, nil, sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveStepExecution(t.Context(), se))

	orphan := core.NewStepExecution("orphan", nil)
	assert.Error(t, repo.SaveStepExecution(t.Context(), orphan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	repo := NewSQLJobRepository(database.NewSQLDBAdapter(db), database.DialectPostgres)
	mock.ExpectClose()

	assert.NoError(t, repo.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
