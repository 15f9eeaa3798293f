package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

func TestCollector_ChunkAndStepEvents(t *testing.T) {
	c := NewCollector()
	ctx := t.Context()
	je := core.NewJobExecution("ji-1", "parallelStepsJob", core.NewJobParameters(nil))
	se := core.NewStepExecution("step1", je)

	se.MarkAsStarted()
	c.BeforeStep(ctx, se)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeSteps.WithLabelValues("step1")))

	for _, size := range []int{100, 100, 50} {
		c.BeforeChunk(ctx, se)
		c.AfterChunk(ctx, se, size)
	}
	c.OnChunkError(ctx, se, exception.NewWriteError("writer", "失敗", errors.New("boom")))
	se.MarkAsCompleted()
	c.AfterStep(ctx, se)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.chunksCommitted.WithLabelValues("step1")))
	assert.Equal(t, 250.0, testutil.ToFloat64(c.itemsWritten.WithLabelValues("step1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.chunkErrors.WithLabelValues("step1", string(exception.KindWrite))))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeSteps.WithLabelValues("step1")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.stepDuration))
}

func TestCollector_JobExecutions(t *testing.T) {
	c := NewCollector()
	je := core.NewJobExecution("ji-1", "sequentialStepsJob", core.NewJobParameters(nil))
	c.BeforeJob(t.Context(), je)
	je.MarkAsCompleted()
	c.AfterJob(t.Context(), je)

	stopped := core.NewJobExecution("ji-1", "sequentialStepsJob", core.NewJobParameters(nil))
	stopped.MarkAsFailed(nil)
	stopped.ExitStatus = core.ExitStatusStopped
	c.AfterJob(t.Context(), stopped)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobExecutions.WithLabelValues("sequentialStepsJob", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobExecutions.WithLabelValues("sequentialStepsJob", "STOPPED")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	c := NewCollector()
	se := core.NewStepExecution("step2", nil)
	c.AfterChunk(t.Context(), se, 7)

	srv := httptest.NewServer(Handler(c.Registry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `batch_items_written_total{step="step2"} 7`)
}
