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

const stepExecutionColumns = "id, job_execution_id, step_name, status, exit_status, failures, read_count, write_count, filter_count, commit_count, rollback_count, execution_context, start_time, end_time, last_updated, version"

// SQLStepExecutionRepository は StepExecutionRepository の SQL データベース実装です。
type SQLStepExecutionRepository struct {
	db      database.DBConnection
	dialect database.Dialect
	jobs    *SQLJobExecutionRepository
}

// NewSQLStepExecutionRepository は新しい SQLStepExecutionRepository のインスタンスを作成します。
func NewSQLStepExecutionRepository(db database.DBConnection, dialect database.Dialect) *SQLStepExecutionRepository {
	return &SQLStepExecutionRepository{db: db, dialect: dialect}
}

// SetJobExecutionRepository は親の JobExecution の読み込みに使うリポジトリを設定します。
func (r *SQLStepExecutionRepository) SetJobExecutionRepository(jobs *SQLJobExecutionRepository) {
	r.jobs = jobs
}

// SaveStepExecution は新しい StepExecution をデータベースに保存します。
func (r *SQLStepExecutionRepository) SaveStepExecution(ctx context.Context, se *core.StepExecution) error {
	if se.JobExecution == nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) に JobExecution がありません", se.ID), nil)
	}
	failuresJSON, contextJSON, err := marshalStepState(se)
	if err != nil {
		return err
	}
	query := r.dialect.Rebind(`INSERT INTO batch_step_execution (` + stepExecutionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		se.ID,
		se.JobExecution.ID,
		se.StepName,
		string(se.Status),
		string(se.ExitStatus),
		failuresJSON,
		se.ReadCount,
		se.WriteCount,
		se.FilterCount,
		se.CommitCount,
		se.RollbackCount,
		contextJSON,
		nullTime(se.StartTime),
		nullTime(se.EndTime),
		se.LastUpdated,
		se.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の保存に失敗しました", se.ID), err)
	}
	logger.Debugf("StepExecution (ID: %s, StepName: %s) を保存しました。", se.ID, se.StepName)
	return nil
}

// UpdateStepExecution は既存の StepExecution の状態と件数を更新し、Version を一つ進めます。
func (r *SQLStepExecutionRepository) UpdateStepExecution(ctx context.Context, se *core.StepExecution) error {
	failuresJSON, contextJSON, err := marshalStepState(se)
	if err != nil {
		return err
	}
	now := time.Now()
	query := r.dialect.Rebind(`UPDATE batch_step_execution
SET status = ?, exit_status = ?, failures = ?, read_count = ?, write_count = ?, filter_count = ?, commit_count = ?, rollback_count = ?,
    execution_context = ?, start_time = ?, end_time = ?, last_updated = ?, version = ?
WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query,
		string(se.Status),
		string(se.ExitStatus),
		failuresJSON,
		se.ReadCount,
		se.WriteCount,
		se.FilterCount,
		se.CommitCount,
		se.RollbackCount,
		contextJSON,
		nullTime(se.StartTime),
		nullTime(se.EndTime),
		now,
		se.Version+1,
		se.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の更新に失敗しました", se.ID), err)
	}
	if err := requireAffected(res, "StepExecution", se.ID); err != nil {
		return err
	}
	se.Version++
	se.LastUpdated = now
	logger.Debugf("StepExecution (ID: %s) を更新しました。ステータス: %s", se.ID, se.Status)
	return nil
}

// FindStepExecutionByID は ID で StepExecution を取得します。親の JobExecution も読み込みます。
func (r *SQLStepExecutionRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error) {
	query := r.dialect.Rebind("SELECT " + stepExecutionColumns + " FROM batch_step_execution WHERE id = ?")
	se, jobExecutionID, err := scanStepExecution(r.db.QueryRowContext(ctx, query, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) が見つかりませんでした", executionID), ErrNotFound)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の取得に失敗しました", executionID), err)
	}
	if r.jobs != nil {
		je, err := r.jobs.findByID(ctx, jobExecutionID)
		if err != nil {
			return nil, err
		}
		se.JobExecution = je
	} else {
		se.JobExecution = &core.JobExecution{ID: jobExecutionID}
	}
	return se, nil
}

// FindStepExecutionsByJobExecutionID は JobExecution に属する StepExecution を開始順に返します。
func (r *SQLStepExecutionRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	return r.loadInto(ctx, &core.JobExecution{ID: jobExecutionID})
}

// loadInto は je に属する StepExecution を読み込み、je に関連付けます。
func (r *SQLStepExecutionRepository) loadInto(ctx context.Context, je *core.JobExecution) ([]*core.StepExecution, error) {
	query := r.dialect.Rebind("SELECT " + stepExecutionColumns + " FROM batch_step_execution WHERE job_execution_id = ? ORDER BY start_time, step_name")
	rows, err := r.db.QueryContext(ctx, query, je.ID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の StepExecution 取得に失敗しました", je.ID), err)
	}
	defer rows.Close()

	var steps []*core.StepExecution
	for rows.Next() {
		se, _, err := scanStepExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError(module, "StepExecution のスキャンに失敗しました", err)
		}
		se.JobExecution = je
		je.AddStepExecution(se)
		steps = append(steps, se)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "StepExecution 取得後の行処理中にエラーが発生しました", err)
	}
	return steps, nil
}

func marshalStepState(se *core.StepExecution) (string, string, error) {
	failuresJSON, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return "", "", err
	}
	contextJSON, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return "", "", err
	}
	return string(failuresJSON), string(contextJSON), nil
}

func scanStepExecution(row rowScanner) (*core.StepExecution, string, error) {
	se := &core.StepExecution{}
	var (
		jobExecutionID            string
		status, exitStatus        string
		failuresJSON, contextJSON sql.NullString
		startTime, endTime        sql.NullTime
	)
	err := row.Scan(&se.ID, &jobExecutionID, &se.StepName, &status, &exitStatus, &failuresJSON,
		&se.ReadCount, &se.WriteCount, &se.FilterCount, &se.CommitCount, &se.RollbackCount,
		&contextJSON, &startTime, &endTime, &se.LastUpdated, &se.Version)
	if err != nil {
		return nil, "", err
	}
	se.Status = core.JobStatus(status)
	se.ExitStatus = core.ExitStatus(exitStatus)
	se.StartTime = startTime.Time
	se.EndTime = endTime.Time

	if se.Failures, err = serialization.UnmarshalFailures([]byte(failuresJSON.String)); err != nil {
		logger.Errorf("StepExecution (ID: %s) の Failures のデコードに失敗しました: %v", se.ID, err)
	}
	if se.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(contextJSON.String)); err != nil {
		logger.Errorf("StepExecution (ID: %s) の ExecutionContext のデコードに失敗しました: %v", se.ID, err)
		se.ExecutionContext = core.NewExecutionContext()
	}
	return se, jobExecutionID, nil
}

var _ StepExecutionRepository = (*SQLStepExecutionRepository)(nil)
