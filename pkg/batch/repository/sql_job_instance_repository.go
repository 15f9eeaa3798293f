package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/serialization"
)

const module = "job_repository"

const jobInstanceColumns = "id, job_name, job_parameters, create_time, version"

// SQLJobInstanceRepository は JobInstanceRepository の SQL データベース実装です。
type SQLJobInstanceRepository struct {
	db      database.DBConnection
	dialect database.Dialect
}

// NewSQLJobInstanceRepository は新しい SQLJobInstanceRepository のインスタンスを作成します。
func NewSQLJobInstanceRepository(db database.DBConnection, dialect database.Dialect) *SQLJobInstanceRepository {
	return &SQLJobInstanceRepository{db: db, dialect: dialect}
}

// SaveJobInstance は新しい JobInstance をデータベースに保存します。
func (r *SQLJobInstanceRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	paramsJSON, err := serialization.MarshalJobParameters(jobInstance.Parameters)
	if err != nil {
		return err
	}
	query := r.dialect.Rebind(`INSERT INTO batch_job_instance (id, job_name, job_parameters, parameters_hash, create_time, version)
VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		jobInstance.ID,
		jobInstance.JobName,
		string(paramsJSON),
		jobInstance.ParametersHash,
		jobInstance.CreateTime,
		jobInstance.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の保存に失敗しました", jobInstance.ID), err)
	}
	logger.Debugf("JobInstance (ID: %s, JobName: %s) を保存しました。", jobInstance.ID, jobInstance.JobName)
	return nil
}

// FindJobInstanceByJobNameAndParameters はパラメータのハッシュで JobInstance を検索します。
func (r *SQLJobInstanceRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	query := r.dialect.Rebind("SELECT " + jobInstanceColumns + " FROM batch_job_instance WHERE job_name = ? AND parameters_hash = ?")
	ji, err := r.scan(r.db.QueryRowContext(ctx, query, jobName, params.Hash()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (JobName: %s) の検索に失敗しました", jobName), err)
	}
	return ji, nil
}

// FindJobInstanceByID は ID で JobInstance を取得します。
func (r *SQLJobInstanceRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	query := r.dialect.Rebind("SELECT " + jobInstanceColumns + " FROM batch_job_instance WHERE id = ?")
	ji, err := r.scan(r.db.QueryRowContext(ctx, query, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) が見つかりませんでした", instanceID), ErrNotFound)
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err)
	}
	return ji, nil
}

func (r *SQLJobInstanceRepository) scan(row *sql.Row) (*core.JobInstance, error) {
	ji := &core.JobInstance{}
	var paramsJSON sql.NullString
	if err := row.Scan(&ji.ID, &ji.JobName, &paramsJSON, &ji.CreateTime, &ji.Version); err != nil {
		return nil, err
	}
	params, err := serialization.UnmarshalJobParameters([]byte(paramsJSON.String))
	if err != nil {
		logger.Errorf("JobInstance (ID: %s) の JobParameters のデコードに失敗しました: %v", ji.ID, err)
	}
	ji.Parameters = params
	ji.ParametersHash = params.Hash()
	return ji, nil
}

// GetJobInstanceCount は指定されたジョブ名の JobInstance の数を返します。
func (r *SQLJobInstanceRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	var count int
	query := r.dialect.Rebind("SELECT COUNT(*) FROM batch_job_instance WHERE job_name = ?")
	if err := r.db.QueryRowContext(ctx, query, jobName).Scan(&count); err != nil {
		return 0, exception.NewBatchError(module, fmt.Sprintf("ジョブ '%s' の JobInstance 数取得に失敗しました", jobName), err)
	}
	return count, nil
}

// GetJobNames はリポジトリに存在する全てのジョブ名を返します。
func (r *SQLJobInstanceRepository) GetJobNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT job_name FROM batch_job_instance ORDER BY job_name")
	if err != nil {
		return nil, exception.NewBatchError(module, "ジョブ名の取得に失敗しました", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, exception.NewBatchError(module, "ジョブ名のスキャンに失敗しました", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError(module, "ジョブ名取得後の行処理中にエラーが発生しました", err)
	}
	return names, nil
}

var _ JobInstanceRepository = (*SQLJobInstanceRepository)(nil)
