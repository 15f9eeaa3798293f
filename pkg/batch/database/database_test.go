package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

func TestDialect(t *testing.T) {
	assert.Equal(t, DialectPostgres, DialectFor("postgres"))
	assert.Equal(t, DialectPostgres, DialectFor("pgx"))
	assert.Equal(t, DialectPostgres, DialectFor("redshift"))
	assert.Equal(t, DialectMySQL, DialectFor("MySQL"))
	assert.Equal(t, DialectSnowflake, DialectFor("snowflake"))

	assert.Equal(t, "$1, $2, $3", DialectPostgres.Placeholders(1, 3))
	assert.Equal(t, "$4", DialectPostgres.Placeholder(4))
	assert.Equal(t, "?, ?", DialectMySQL.Placeholders(1, 2))
	assert.Equal(t, "?", DialectSnowflake.Placeholder(7))

	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", DialectPostgres.Rebind(q))
	assert.Equal(t, q, DialectMySQL.Rebind(q))
}

func TestMigrationURL(t *testing.T) {
	pg := config.DatabaseConfig{Type: "postgres", Host: "db", Port: 5432, Database: "batch", User: "u", Password: "p"}
	got, err := MigrationURL(pg, FrameworkMigrationsTable)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/batch?sslmode=disable&x-migrations-table=batch_schema_migrations", got)

	got, err = MigrationURL(pg, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/batch?sslmode=disable", got)

	my := config.DatabaseConfig{Type: "mysql", Host: "db", Port: 3306, Database: "batch", User: "u", Password: "p"}
	got, err = MigrationURL(my, FrameworkMigrationsTable)
	require.NoError(t, err)
	assert.Equal(t, "mysql://u:p@tcp(db:3306)/batch?multiStatements=true&x-migrations-table=batch_schema_migrations", got)

	_, err = MigrationURL(config.DatabaseConfig{Type: "snowflake"}, "")
	assert.True(t, exception.IsConfigurationError(err))
	assert.False(t, SupportsMigrations("snowflake"))
	assert.True(t, SupportsMigrations("pgx"))
}

func TestFrameworkMigrationsEmbedded(t *testing.T) {
	for _, dir := range []string{"migrations/postgres", "migrations/mysql"} {
		entries, err := fs.ReadDir(frameworkMigrations, dir)
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.Contains(t, names, "000001_create_batch_tables.up.sql")
		assert.Contains(t, names, "000001_create_batch_tables.down.sql")
	}
}

func TestRunMigrations_EmptyPathSkips(t *testing.T) {
	assert.NoError(t, RunMigrations(config.DatabaseConfig{Type: "postgres"}, ""))
}
