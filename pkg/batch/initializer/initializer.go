package initializer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	config "github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/component"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/factory"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/joblauncher"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/joboperator"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/jsl"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/listener"
	"github.com/tusharparekh/scaling-demos/pkg/batch/metrics"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const module = "initializer"

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
type BatchInitializer struct {
	Config             *config.Config
	JSLDefinitionBytes []byte
	// AppMigrations はアプリケーションの埋め込みマイグレーションです。
	// 方言ごとに "postgres" と "mysql" のディレクトリを持ちます。nil の場合は Database.AppMigrationPath を使います。
	AppMigrations fs.FS
	// RegisterComponents はアプリケーションのリーダー、プロセッサ、ライターを登録します。
	RegisterComponents func(r *component.Registry)

	// DB が Initialize の前に設定されている場合、データベースへの接続とマイグレーションは行いません。
	DB            database.DBConnection
	JobRepository repository.JobRepository
	Registry      *component.Registry
	JobFactory    *factory.JobFactory
	JobLauncher   *joblauncher.SimpleJobLauncher
	JobOperator   joboperator.JobOperator
	Metrics       *metrics.Collector

	amqpChannel   *listener.AMQPChannel
	stopMetrics   context.CancelFunc
	metricsResult chan error
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
// cfg.EmbeddedConfig が Initialize でロードされます。
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{
		Config: cfg,
	}
}

// Initialize はバッチアプリケーションの初期化処理を実行します。
func (bi *BatchInitializer) Initialize(ctx context.Context) (joboperator.JobOperator, error) {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")

	// Step 1: 設定のロード
	cfg, err := config.NewBytesConfigLoader(bi.Config.EmbeddedConfig).Load()
	if err != nil {
		return nil, exception.NewConfigurationError(module, "設定のロードに失敗しました", err)
	}
	bi.Config = cfg
	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.SetFormat(cfg.System.Logging.Format)
	logger.Infof("ロギングレベルを '%s' に設定しました。", cfg.System.Logging.Level)

	// Step 2: データベース接続とマイグレーション
	if bi.DB == nil && cfg.Database.Type != "memory" {
		db, err := connectWithRetry(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		bi.DB = db
		if err := bi.migrate(); err != nil {
			return nil, err
		}
	}

	// Step 3: Job Repository の生成
	bi.JobRepository = repository.NewJobRepository(cfg.Database, bi.DB)
	logger.Infof("Job Repository を生成しました。")

	// Step 4: JSL 定義のロード
	definitions := jsl.NewDefinitions()
	if err := definitions.LoadFromBytes(bi.JSLDefinitionBytes); err != nil {
		return nil, err
	}

	// Step 5: コンポーネントの登録
	bi.Registry = component.NewRegistry()
	component.RegisterDefaults(bi.Registry)
	if bi.RegisterComponents != nil {
		bi.RegisterComponents(bi.Registry)
	}

	// Step 6: メトリクスと通知
	var opts []factory.Option
	if cfg.Metrics.Enabled {
		bi.Metrics = metrics.NewCollector()
		opts = append(opts,
			factory.WithJobListeners(bi.Metrics),
			factory.WithStepListeners(bi.Metrics),
			factory.WithChunkListeners(bi.Metrics),
		)
		bi.serveMetrics(ctx, cfg.Metrics.Address)
	}
	if cfg.Notification.AMQP.Enabled {
		amqpCfg := cfg.Notification.AMQP
		ch, err := listener.DialAMQP(amqpCfg.URL, amqpCfg.Exchange)
		if err != nil {
			return nil, err
		}
		bi.amqpChannel = ch
		opts = append(opts, factory.WithJobListeners(listener.NewAMQPNotifier(ch, amqpCfg.Exchange, amqpCfg.RoutingKey)))
		logger.Infof("ジョブ終了イベントを AMQP exchange '%s' に送信します。", amqpCfg.Exchange)
	}

	// Step 7: JobFactory, JobLauncher, JobOperator の生成
	deps := component.Dependencies{
		Config:  cfg,
		DB:      bi.DB,
		Dialect: database.DialectFor(cfg.Database.Type),
	}
	bi.JobFactory = factory.NewJobFactory(definitions, bi.Registry, deps, bi.JobRepository, opts...)
	bi.JobLauncher = joblauncher.NewSimpleJobLauncher(bi.JobRepository)
	bi.JobOperator = joboperator.NewDefaultJobOperator(bi.JobRepository, bi.JobFactory, bi.JobLauncher)
	logger.Infof("DefaultJobOperator を生成しました。ジョブ: %v", bi.JobFactory.JobNames())

	return bi.JobOperator, nil
}

// connectWithRetry は設定されたデータベースにリトライ付きで接続します。
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	maxAttempts := cfg.ConnectRetry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := time.Duration(cfg.ConnectRetry.IntervalSeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		logger.Debugf("データベース接続を試行中 (試行 %d/%d)...", attempt, maxAttempts)
		db, err := database.NewDBConnectionFromConfig(ctx, cfg)
		if err == nil {
			logger.Infof("データベース接続に成功しました。")
			return db, nil
		}
		if exception.IsConfigurationError(err) {
			return nil, err
		}
		lastErr = err
		logger.Warnf("データベースへの接続に失敗しました: %v", err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, exception.NewBatchError(module, "データベース接続の待機中に中断されました", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, exception.NewBatchError(module, fmt.Sprintf("データベースへの接続に最大試行回数 (%d) 失敗しました", maxAttempts), lastErr)
}

func (bi *BatchInitializer) migrate() error {
	dbCfg := bi.Config.Database
	if !database.SupportsMigrations(dbCfg.Type) {
		logger.Warnf("データベースタイプ '%s' はマイグレーションに対応していません。スキップします。", dbCfg.Type)
		return nil
	}
	if err := database.RunFrameworkMigrations(dbCfg); err != nil {
		return exception.NewBatchError(module, "バッチフレームワークのマイグレーションに失敗しました", err)
	}
	var err error
	if bi.AppMigrations != nil {
		err = database.RunEmbeddedMigrations(dbCfg, bi.AppMigrations, string(database.DialectFor(dbCfg.Type)), "")
	} else {
		err = database.RunMigrations(dbCfg, dbCfg.AppMigrationPath)
	}
	if err != nil {
		return exception.NewBatchError(module, "アプリケーションのマイグレーションに失敗しました", err)
	}
	return nil
}

func (bi *BatchInitializer) serveMetrics(ctx context.Context, addr string) {
	metricsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	bi.stopMetrics = cancel
	bi.metricsResult = make(chan error, 1)
	go func() {
		bi.metricsResult <- metrics.Serve(metricsCtx, addr, bi.Metrics.Registry())
	}()
}

// Close は BatchInitializer が保持するリソースを解放します。
func (bi *BatchInitializer) Close() error {
	var errs []error
	if bi.stopMetrics != nil {
		bi.stopMetrics()
		if err := <-bi.metricsResult; err != nil {
			errs = append(errs, fmt.Errorf("メトリクスサーバーの停止エラー: %w", err))
		}
	}
	if bi.amqpChannel != nil {
		if err := bi.amqpChannel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("AMQP 接続のクローズエラー: %w", err))
		}
	}
	if bi.JobRepository != nil {
		if err := bi.JobRepository.Close(); err != nil {
			errs = append(errs, fmt.Errorf("Job Repository のクローズエラー: %w", err))
		} else {
			logger.Infof("Job Repository を正常にクローズしました。")
		}
	}
	// SQLJobRepository は Close で DB も閉じます。
	if _, sqlRepo := bi.JobRepository.(*repository.SQLJobRepository); !sqlRepo && bi.DB != nil {
		if err := bi.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("データベース接続のクローズエラー: %w", err))
		}
	}
	return errors.Join(errs...)
}
