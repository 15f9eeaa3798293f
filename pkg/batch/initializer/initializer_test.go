package initializer

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/batchtest"
	config "github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/component"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/repository"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

const testConfig = `
database:
  type: memory
batch:
  chunk_size: 3
system:
  logging:
    level: DEBUG
    format: json
metrics:
  enabled: true
  address: "127.0.0.1:0"
`

const testJSL = `
id: countJob
incrementer:
  ref: runIdIncrementer
listeners:
  - ref: loggingJobListener
flow:
  start-element: count
  elements:
    count:
      reader:
        ref: countReader
        properties:
          n: "#{jobParameters['n']}"
      writer:
        ref: txWriter
      listeners:
        - ref: loggingStepListener
      chunk-listeners:
        - ref: loggingChunkListener
`

func registerTestComponents(r *component.Registry) {
	r.RegisterReader("countReader", func(deps component.Dependencies, properties map[string]string) (core.ItemReader[any], error) {
		n, err := component.IntProperty(properties, "n", 0)
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, n)
		for _, v := range batchtest.Sequence(n) {
			items = append(items, v)
		}
		return &batchtest.FailingReader[any]{Items: items}, nil
	})
	r.RegisterWriter("txWriter", func(component.Dependencies, map[string]string) (core.ItemWriter[any], error) {
		return &batchtest.TxWriter[any]{}, nil
	})
}

func TestBatchInitializer_InitializeAndStart(t *testing.T) {
	db := batchtest.NewFakeDB()
	cfg := config.NewConfig()
	cfg.EmbeddedConfig = []byte(testConfig)

	bi := NewBatchInitializer(cfg)
	bi.JSLDefinitionBytes = []byte(testJSL)
	bi.RegisterComponents = registerTestComponents
	bi.DB = db

	op, err := bi.Initialize(t.Context())
	require.NoError(t, err)
	defer func() { assert.NoError(t, bi.Close()) }()

	assert.Equal(t, 3, bi.Config.Batch.ChunkSize)
	assert.IsType(t, &repository.InMemoryJobRepository{}, bi.JobRepository)
	require.NotNil(t, bi.Metrics)

	je, err := op.Start(t.Context(), "countJob", core.NewJobParameters(map[string]string{"n": "7"}))
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Equal(t, "1", je.Parameters.GetString("run.id", ""))
	assert.Equal(t, []int{3, 3, 1}, db.ChunkSizes())

	count, err := testutil.GatherAndCount(bi.Metrics.Registry(), "batch_job_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = op.Start(t.Context(), "countJob", core.NewJobParameters(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrMissingParameter)
}

func TestBatchInitializer_InvalidJSL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.EmbeddedConfig = []byte("database:\n  type: memory\n")

	bi := NewBatchInitializer(cfg)
	bi.JSLDefinitionBytes = []byte("id: broken\n")
	_, err := bi.Initialize(t.Context())
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
	assert.NoError(t, bi.Close())
}
