package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/source/file"       // ファイルソースドライバを登録
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// FrameworkMigrationsTable はバッチフレームワークのマイグレーション履歴テーブルです。
// アプリケーションのマイグレーションはデフォルトの schema_migrations を使用します。
const FrameworkMigrationsTable = "batch_schema_migrations"

//go:embed migrations
var frameworkMigrations embed.FS

// MigrationURL は golang-migrate が期待するデータベース URL を返します。
// migrationsTable が空の場合はデフォルトのテーブルが使用されます。
func MigrationURL(cfg config.DatabaseConfig, migrationsTable string) (string, error) {
	var databaseURL string
	switch strings.ToLower(cfg.Type) {
	case "postgres", "pgx", "redshift":
		databaseURL = cfg.ConnectionString()
	case "mysql":
		databaseURL = "mysql://" + cfg.ConnectionString() + "?multiStatements=true"
	default:
		return "", exception.NewConfigurationError("migration",
			fmt.Sprintf("データベースタイプ '%s' のマイグレーションはサポートされていません", cfg.Type), nil)
	}
	if migrationsTable == "" {
		return databaseURL, nil
	}
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return databaseURL + sep + "x-migrations-table=" + url.QueryEscape(migrationsTable), nil
}

// SupportsMigrations はデータベースタイプがマイグレーションに対応しているかを返します。
func SupportsMigrations(dbType string) bool {
	switch strings.ToLower(dbType) {
	case "postgres", "pgx", "redshift", "mysql":
		return true
	default:
		return false
	}
}

// RunFrameworkMigrations はバッチフレームワークのメタデータテーブルを作成します。
// マイグレーションは埋め込まれており、方言ごとのディレクトリから読み込まれます。
func RunFrameworkMigrations(cfg config.DatabaseConfig) error {
	dir := "migrations/postgres"
	if DialectFor(cfg.Type) == DialectMySQL {
		dir = "migrations/mysql"
	}
	logger.Infof("バッチフレームワークのマイグレーションを開始します。DBタイプ: %s", cfg.Type)
	return RunEmbeddedMigrations(cfg, frameworkMigrations, dir, FrameworkMigrationsTable)
}

// RunEmbeddedMigrations は fsys の dir にあるマイグレーションを migrationsTable を履歴として適用します。
// migrationsTable が空の場合は schema_migrations です。
func RunEmbeddedMigrations(cfg config.DatabaseConfig, fsys fs.FS, dir, migrationsTable string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("埋め込みマイグレーション '%s' の読み込みに失敗しました", dir), err)
	}
	databaseURL, err := MigrationURL(cfg, migrationsTable)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err)
	}
	defer closeMigrate(m)
	return up(m, dir)
}

// RunMigrations は migrationsPath のマイグレーションファイルを適用します。
func RunMigrations(cfg config.DatabaseConfig, migrationsPath string) error {
	if migrationsPath == "" {
		logger.Infof("マイグレーションパスが指定されていません。スキップします。")
		return nil
	}
	databaseURL, err := MigrationURL(cfg, "")
	if err != nil {
		return err
	}

	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", cfg.Type, migrationsPath)
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("マイグレーションインスタンスの作成に失敗しました: %s", migrationsPath), err)
	}
	defer closeMigrate(m)
	return up(m, migrationsPath)
}

func up(m *migrate.Migrate, name string) error {
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です: %s", name)
			return nil
		}
		return exception.NewBatchError("migration", fmt.Sprintf("マイグレーションの適用に失敗しました: %s", name), err)
	}
	logger.Infof("マイグレーションが正常に完了しました: %s", name)
	return nil
}

func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		logger.Warnf("マイグレーションのクローズに失敗しました: source=%v, database=%v", srcErr, dbErr)
	}
}
