package listener

import (
	"context"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログに出力する JobExecutionListener です。
type LoggingJobListener struct{}

// NewLoggingJobListener は新しい LoggingJobListener を作成します。
func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, je *core.JobExecution) {
	logger.WithFields(map[string]any{
		"job":          je.JobName,
		"execution_id": je.ID,
		"parameters":   je.Parameters.String(),
	}).Info("ジョブの実行を開始します。")
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, je *core.JobExecution) {
	entry := logger.WithFields(map[string]any{
		"job":          je.JobName,
		"execution_id": je.ID,
		"status":       string(je.Status),
		"exit_status":  string(je.ExitStatus),
		"duration":     je.EndTime.Sub(je.StartTime).String(),
	})
	for _, se := range je.StepExecutions() {
		entry.WithFields(map[string]any{
			"step":   se.StepName,
			"status": string(se.Status),
			"read":   se.ReadCount,
			"write":  se.WriteCount,
			"commit": se.CommitCount,
		}).Info("ステップの結果")
	}
	if je.Status == core.BatchStatusCompleted {
		entry.Info("ジョブの実行が正常に完了しました。")
		return
	}
	entry.WithField("failures", len(je.Failures)).Error("ジョブの実行が正常に完了しませんでした。")
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)
