package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout は入力ファイルの取引日時の書式です。
const TimestampLayout = "2006-01-02 15:04:05"

// Transaction は口座ごとの取引を表す構造体です。
type Transaction struct {
	Account   string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// ParseTransaction は文字列のフィールドから Transaction を作成します。
// 日時は UTC として解釈されます。
func ParseTransaction(account, amount, timestamp string) (Transaction, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Transaction{}, fmt.Errorf("account が空です")
	}
	a, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Transaction{}, fmt.Errorf("amount '%s' を数値に変換できません: %w", amount, err)
	}
	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(timestamp), time.UTC)
	if err != nil {
		return Transaction{}, fmt.Errorf("timestamp '%s' を日時に変換できません: %w", timestamp, err)
	}
	return Transaction{Account: account, Amount: a, Timestamp: ts}, nil
}
