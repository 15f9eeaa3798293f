package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/serialization"
)

const jobExecutionColumns = "id, job_instance_id, job_name, job_parameters, status, exit_status, exit_code, failures, start_time, end_time, create_time, last_updated, version"

// rowScanner は *sql.Row と *sql.Rows の共通部分です。
type rowScanner interface {
	Scan(dest ...any) error
}

// SQLJobExecutionRepository は JobExecutionRepository の SQL データベース実装です。
type SQLJobExecutionRepository struct {
	db      database.DBConnection
	dialect database.Dialect
	// steps は FindJobExecutionByID で StepExecution を読み込むために使います。
	steps *SQLStepExecutionRepository
}

// NewSQLJobExecutionRepository は新しい SQLJobExecutionRepository のインスタンスを作成します。
func NewSQLJobExecutionRepository(db database.DBConnection, dialect database.Dialect) *SQLJobExecutionRepository {
	return &SQLJobExecutionRepository{db: db, dialect: dialect}
}

// SetStepExecutionRepository は StepExecution の読み込みに使うリポジトリを設定します。
func (r *SQLJobExecutionRepository) SetStepExecutionRepository(steps *SQLStepExecutionRepository) {
	r.steps = steps
}

// SaveJobExecution は新しい JobExecution をデータベースに保存します。
func (r *SQLJobExecutionRepository) SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	paramsJSON, err := serialization.MarshalJobParameters(jobExecution.Parameters)
	if err != nil {
		return err
	}
	failuresJSON, err := serialization.MarshalFailures(jobExecution.Failures)
	if err != nil {
		return err
	}
	query := r.dialect.Rebind(`INSERT INTO batch_job_execution (` + jobExecutionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		jobExecution.ID,
		jobExecution.JobInstanceID,
		jobExecution.JobName,
		string(paramsJSON),
		string(jobExecution.Status),
		string(jobExecution.ExitStatus),
		jobExecution.ExitCode,
		string(failuresJSON),
		nullTime(jobExecution.StartTime),
		nullTime(jobExecution.EndTime),
		jobExecution.CreateTime,
		jobExecution.LastUpdated,
		jobExecution.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の保存に失敗しました", jobExecution.ID), err)
	}
	logger.Debugf("JobExecution (ID: %s, JobInstanceID: %s) を保存しました。", jobExecution.ID, jobExecution.JobInstanceID)
	return nil
}

// UpdateJobExecution は既存の JobExecution の状態を更新し、Version を一つ進めます。
func (r *SQLJobExecutionRepository) UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error {
	failuresJSON, err := serialization.MarshalFailures(jobExecution.Failures)
	if err != nil {
		return err
	}
	now := time.Now()
	query := r.dialect.Rebind(`UPDATE batch_job_execution
SET status = ?, exit_status = ?, exit_code = ?, failures = ?, start_time = ?, end_time = ?, last_updated = ?, version = ?
WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query,
		string(jobExecution.Status),
		string(jobExecution.ExitStatus),
		jobExecution.ExitCode,
		string(failuresJSON),
		nullTime(jobExecution.StartTime),
		nullTime(jobExecution.EndTime),
		now,
		jobExecution.Version+1,
		jobExecution.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", jobExecution.ID), err)
	}
	if err := requireAffected(res, "JobExecution", jobExecution.ID); err != nil {
		return err
	}
	jobExecution.Version++
	jobExecution.LastUpdated = now
	logger.Debugf("JobExecution (ID: %s) を更新しました。ステータス: %s", jobExecution.ID, jobExecution.Status)
	return nil
}

// FindJobExecutionByID は ID で JobExecution を取得し、StepExecution も読み込みます。
func (r *SQLJobExecutionRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	je, err := r.findByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if r.steps != nil {
		if _, err := r.steps.loadInto(ctx, je); err != nil {
			return nil, err
		}
	}
	return je, nil
}

func (r *SQLJobExecutionRepository) findByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	query := r.dialect.Rebind("SELECT " + jobExecutionColumns + " FROM batch_job_execution WHERE id = ?")
	je, err := scanJobExecution(r.db.QueryRowContext(ctx, query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) が見つかりませんでした", executionID), ErrNotFound)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の取得に失敗しました", executionID), err)
	}
	return je, nil
}

// FindLatestJobExecution は JobInstance の最新の JobExecution を取得します。
func (r *SQLJobExecutionRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	executions, err := r.findByInstance(ctx, jobInstanceID)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, nil
	}
	return executions[0], nil
}

// FindJobExecutionsByJobInstance は JobInstance の JobExecution を新しい順に返します。
func (r *SQLJobExecutionRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *core.JobInstance) ([]*core.JobExecution, error) {
	return r.findByInstance(ctx, jobInstance.ID)
}

func (r *SQLJobExecutionRepository) findByInstance(ctx context.Context, jobInstanceID string) ([]*core.JobExecution, error) {
	query := r.dialect.Rebind("SELECT " + jobExecutionColumns + " FROM batch_job_execution WHERE job_instance_id = ? ORDER BY create_time DESC")
	rows, err := r.db.QueryContext(ctx, query, jobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の JobExecution 取得に失敗しました", jobInstanceID), err)
	}
	defer rows.Close()

	var executions []*core.JobExecution
	for rows.Next() {
		je, err := scanJobExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError(module, "JobExecution のスキャンに失敗しました", err)
		}
		executions = append(executions, je)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "JobExecution 取得後の行処理中にエラーが発生しました", err)
	}
	return executions, nil
}

func scanJobExecution(row rowScanner) (*core.JobExecution, error) {
	je := &core.JobExecution{ExecutionContext: core.NewExecutionContext()}
	var (
		paramsJSON, failuresJSON sql.NullString
		status, exitStatus       string
		startTime, endTime       sql.NullTime
	)
	err := row.Scan(&je.ID, &je.JobInstanceID, &je.JobName, &paramsJSON, &status, &exitStatus, &je.ExitCode,
		&failuresJSON, &startTime, &endTime, &je.CreateTime, &je.LastUpdated, &je.Version)
	if err != nil {
		return nil, err
	}
	je.Status = core.JobStatus(status)
	je.ExitStatus = core.ExitStatus(exitStatus)
	je.StartTime = startTime.Time
	je.EndTime = endTime.Time

	if je.Parameters, err = serialization.UnmarshalJobParameters([]byte(paramsJSON.String)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の JobParameters のデコードに失敗しました: %v", je.ID, err)
	}
	if je.Failures, err = serialization.UnmarshalFailures([]byte(failuresJSON.String)); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Failures のデコードに失敗しました: %v", je.ID, err)
	}
	return je, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("%s (ID: %s) の更新結果取得に失敗しました", entity, id), err)
	}
	if n == 0 {
		return exception.NewBatchError(module, fmt.Sprintf("%s (ID: %s) の更新対象が見つかりませんでした", entity, id), ErrNotFound)
	}
	return nil
}

var _ JobExecutionRepository = (*SQLJobExecutionRepository)(nil)
