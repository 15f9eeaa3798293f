package incrementer

import (
	"fmt"
	"strconv"
	"time"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
)

// DefaultTimestampKey は TimestampIncrementer が既定で使うパラメータ名です。
const DefaultTimestampKey = "timestamp"

// TimestampIncrementer はジョブパラメータに現在時刻の Unix ミリ秒を設定する JobParametersIncrementer の実装です。
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer は新しい TimestampIncrementer のインスタンスを作成します。
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = DefaultTimestampKey
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext は "timestamp" を現在時刻で上書きした新しい JobParameters を返します。
// 前回の値と同じミリ秒になった場合は 1 ミリ秒進めます。
func (i *TimestampIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	ts := i.now().UnixMilli()
	if prev, err := strconv.ParseInt(params.GetString(i.name, ""), 10, 64); err == nil && ts <= prev {
		ts = prev + 1
	}
	return params.With(i.name, strconv.FormatInt(ts, 10))
}

// String は TimestampIncrementer の文字列表現を返します。
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ core.JobParametersIncrementer = (*TimestampIncrementer)(nil)
