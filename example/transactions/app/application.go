package app

import (
	"context"
	"errors"
	"io/fs"

	godotenv "github.com/joho/godotenv"

	config "github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	"github.com/tusharparekh/scaling-demos/pkg/batch/initializer"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/joboperator"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/runner"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// Options はアプリケーションの起動オプションです。
type Options struct {
	EnvFilePath    string
	EmbeddedConfig []byte
	EmbeddedJSL    []byte
	// Migrations は transaction テーブルの埋め込みマイグレーションです。
	Migrations fs.FS
	// JobName が空の場合は設定ファイルの batch.job_name を使います。
	JobName string
	// Parameters は batch.default_parameters を上書きします。
	Parameters map[string]string
	// DB が設定されている場合、データベースへの接続とマイグレーションは行いません。
	DB database.DBConnection
}

// setupApplication は .env をロードし、バッチの初期化処理を実行します。
func setupApplication(ctx context.Context, opts Options) (*initializer.BatchInitializer, joboperator.JobOperator, error) {
	if opts.EnvFilePath != "" {
		if err := godotenv.Load(opts.EnvFilePath); err != nil {
			logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", opts.EnvFilePath, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", opts.EnvFilePath)
		}
	} else {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
	}

	batchInitializer := initializer.NewBatchInitializer(&config.Config{EmbeddedConfig: opts.EmbeddedConfig})
	batchInitializer.JSLDefinitionBytes = opts.EmbeddedJSL
	batchInitializer.AppMigrations = opts.Migrations
	batchInitializer.RegisterComponents = RegisterComponents
	batchInitializer.DB = opts.DB

	jobOperator, err := batchInitializer.Initialize(ctx)
	if err != nil {
		// 途中まで確保したリソースを解放します。
		if closeErr := batchInitializer.Close(); closeErr != nil {
			logger.Warnf("初期化失敗後のリソースクローズでエラーが発生しました: %v", closeErr)
		}
		return nil, nil, exception.NewBatchError("app", "バッチアプリケーションの初期化に失敗しました", err)
	}
	logger.Infof("バッチアプリケーションの初期化が完了しました。")
	return batchInitializer, jobOperator, nil
}

// jobParameters は設定のデフォルトに opts.Parameters を重ねた JobParameters を返します。
func jobParameters(cfg *config.Config, overrides map[string]string) core.JobParameters {
	merged := make(map[string]string, len(cfg.Batch.DefaultParameters)+len(overrides))
	for k, v := range cfg.Batch.DefaultParameters {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return core.NewJobParameters(merged)
}

// executeJob は指定されたジョブを実行し、その結果に基づいて終了コードを返します。
func executeJob(ctx context.Context, jobOperator joboperator.JobOperator, cfg *config.Config, opts Options) int {
	jobName := opts.JobName
	if jobName == "" {
		jobName = cfg.Batch.JobName
	}
	if jobName == "" {
		logger.Errorf("実行するジョブ名が指定されていません。--job または batch.job_name を指定してください。")
		return runner.ExitCodeFailed
	}

	params := jobParameters(cfg, opts.Parameters)
	logger.Infof("実行する Job: '%s', パラメータ: %s", jobName, params)

	jobExecution, err := jobOperator.Start(ctx, jobName, params)
	return handleApplicationError(err, jobExecution, jobName)
}

// RunApplication はアプリケーションのメインロジックを実行し、プロセスの終了コードを返します。
func RunApplication(ctx context.Context, opts Options) int {
	batchInitializer, jobOperator, err := setupApplication(ctx, opts)
	if err != nil {
		return handleApplicationError(err, nil, opts.JobName)
	}

	defer func() {
		if closeErr := batchInitializer.Close(); closeErr != nil {
			logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", closeErr)
		} else {
			logger.Infof("バッチアプリケーションのリソースを正常にクローズしました。")
		}
	}()

	return executeJob(ctx, jobOperator, batchInitializer.Config, opts)
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	if err != nil {
		logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobName, err)

		var be *exception.BatchError
		if errors.As(err, &be) {
			logger.Errorf("BatchError 詳細: Module=%s, Kind=%s, Message=%s, OriginalErr=%v", be.Module, be.Kind, be.Message, be.OriginalErr)
			if be.StackTrace != "" {
				logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
			}
		}
		if jobExecution == nil {
			return runner.ExitCodeFailed
		}
	}
	if jobExecution == nil {
		logger.Errorf("Job '%s' の JobExecution がエラーなしで nil でした。", jobName)
		return runner.ExitCodeFailed
	}

	for i, f := range jobExecution.Failures {
		logger.Errorf("  - 失敗 %d: %v", i+1, f)
	}

	switch jobExecution.ExitStatus {
	case core.ExitStatusCompleted:
		logger.Infof("Job '%s' (Execution ID: %s) は正常に完了しました。", jobExecution.JobName, jobExecution.ID)
	case core.ExitStatusStopped:
		logger.Warnf("Job '%s' (Execution ID: %s) は停止されました。",
			jobExecution.JobName, jobExecution.ID)
	default:
		logger.Errorf("Job '%s' は失敗しました。詳細は JobExecution (ID: %s) およびログを確認してください。",
			jobExecution.JobName, jobExecution.ID)
	}
	return jobExecution.ExitCode
}
