package listener

import (
	"context"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// LoggingStepListener はステップの開始と終了をログに出力する StepExecutionListener の実装です。
type LoggingStepListener struct{}

// NewLoggingStepListener は新しい LoggingStepListener のインスタンスを作成します。
func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("StepListener: ステップ '%s' を開始します。", stepExecution.StepName)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	if detail, ok := stepExecution.Failure(); ok {
		logger.Errorf("StepListener: ステップ '%s' は %s で終了しました。%s: %s",
			stepExecution.StepName, stepExecution.Status, detail.Kind, detail.Message)
		return
	}
	logger.Infof("StepListener: ステップ '%s' は %s で終了しました。", stepExecution.StepName, stepExecution.Status)
}

var _ core.StepExecutionListener = (*LoggingStepListener)(nil)
