package incrementer

import (
	"fmt"
	"strconv"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// DefaultRunIDKey は RunIDIncrementer が既定で使うパラメータ名です。
const DefaultRunIDKey = "run.id"

// RunIDIncrementer はジョブパラメータに "run.id" を追加またはインクリメントする JobParametersIncrementer の実装です。
// "run.id" が存在しないか整数でない場合は 1 を設定し、存在する場合はその値をインクリメントします。
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer は新しい RunIDIncrementer のインスタンスを作成します。name が空の場合は "run.id" を使います。
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext は "run.id" を追加またはインクリメントした新しい JobParameters を返します。
func (i *RunIDIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	current, ok := params.Get(i.name)
	if !ok {
		logger.Debugf("JobParametersIncrementer: '%s' が見つからないため、1 を設定しました。", i.name)
		return params.With(i.name, "1")
	}
	n, err := strconv.Atoi(current)
	if err != nil {
		logger.Warnf("JobParametersIncrementer: '%s' の値 '%s' は整数ではありません。1 を設定します。", i.name, current)
		return params.With(i.name, "1")
	}
	logger.Debugf("JobParametersIncrementer: '%s' を %d から %d にインクリメントしました。", i.name, n, n+1)
	return params.With(i.name, strconv.Itoa(n+1))
}

// String は RunIDIncrementer の文字列表現を返します。
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ core.JobParametersIncrementer = (*RunIDIncrementer)(nil)
