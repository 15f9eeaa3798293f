package database

import (
	"context"
	"strconv"
	"strings"

	"github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database/connector"
)

// Dialect は SQL のプレースホルダ表記の違いを表します。
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectSnowflake Dialect = "snowflake"
)

// DialectFor はデータベースタイプに対応する Dialect を返します。
func DialectFor(dbType string) Dialect {
	switch strings.ToLower(dbType) {
	case "mysql":
		return DialectMySQL
	case "snowflake":
		return DialectSnowflake
	default:
		return DialectPostgres
	}
}

// Placeholder は n 番目 (1 始まり) のバインド変数を返します。
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders は from 番目から count 個のバインド変数をカンマ区切りで返します。
func (d Dialect) Placeholders(from, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = d.Placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// Rebind は ? で書かれたクエリを Dialect のバインド変数表記に書き換えます。
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NewDBConnectionFromConfig は設定に基づいて適切なデータベース接続を確立します。
// 登録されたコネクタの中から適切なものを選択して接続します。
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (DBConnection, error) {
	rawDB, err := connector.GetSQLDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSQLDBAdapter(rawDB), nil
}
