package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

const namespace = "batch"

// Collector はジョブ、ステップ、チャンクのイベントを Prometheus のメトリクスとして記録します。
// JobExecutionListener、StepExecutionListener、ChunkListener のすべてとして登録できます。
type Collector struct {
	registry *prometheus.Registry

	jobExecutions   *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	chunksCommitted *prometheus.CounterVec
	itemsWritten    *prometheus.CounterVec
	chunkErrors     *prometheus.CounterVec
	activeSteps     *prometheus.GaugeVec
}

var (
	_ core.JobExecutionListener  = (*Collector)(nil)
	_ core.StepExecutionListener = (*Collector)(nil)
	_ core.ChunkListener         = (*Collector)(nil)
)

// NewCollector は専用のレジストリを持つ Collector を作成します。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_executions_total",
			Help:      "終了したジョブ実行の数",
		}, []string{"job", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "ステップの実行時間",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"step", "status"}),
		chunksCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_committed_total",
			Help:      "コミットされたチャンクの数",
		}, []string{"step"}),
		itemsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_written_total",
			Help:      "コミットされたチャンクに含まれるアイテムの数",
		}, []string{"step"}),
		chunkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_errors_total",
			Help:      "失敗したチャンクの数",
		}, []string{"step", "kind"}),
		activeSteps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_steps",
			Help:      "実行中のステップの数",
		}, []string{"step"}),
	}
	c.registry.MustRegister(
		c.jobExecutions,
		c.stepDuration,
		c.chunksCommitted,
		c.itemsWritten,
		c.chunkErrors,
		c.activeSteps,
	)
	return c
}

// Registry はメトリクスを公開するためのレジストリを返します。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) BeforeJob(ctx context.Context, je *core.JobExecution) {}

func (c *Collector) AfterJob(ctx context.Context, je *core.JobExecution) {
	c.jobExecutions.WithLabelValues(je.JobName, string(je.ExitStatus)).Inc()
}

func (c *Collector) BeforeStep(ctx context.Context, se *core.StepExecution) {
	c.activeSteps.WithLabelValues(se.StepName).Inc()
}

func (c *Collector) AfterStep(ctx context.Context, se *core.StepExecution) {
	c.activeSteps.WithLabelValues(se.StepName).Dec()
	if se.StartTime.IsZero() || se.EndTime.IsZero() {
		return
	}
	c.stepDuration.WithLabelValues(se.StepName, string(se.Status)).Observe(se.EndTime.Sub(se.StartTime).Seconds())
}

func (c *Collector) BeforeChunk(ctx context.Context, se *core.StepExecution) {}

func (c *Collector) AfterChunk(ctx context.Context, se *core.StepExecution, size int) {
	c.chunksCommitted.WithLabelValues(se.StepName).Inc()
	c.itemsWritten.WithLabelValues(se.StepName).Add(float64(size))
}

func (c *Collector) OnChunkError(ctx context.Context, se *core.StepExecution, err error) {
	c.chunkErrors.WithLabelValues(se.StepName, string(exception.KindOf(err))).Inc()
}
