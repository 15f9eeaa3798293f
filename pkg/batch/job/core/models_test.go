package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

func TestStepExecution_StatusIsSetOnce(t *testing.T) {
	se := NewStepExecution("step1", nil)
	assert.Equal(t, BatchStatusStarting, se.Status)

	se.MarkAsStarted()
	assert.Equal(t, BatchStatusStarted, se.Status)

	cause := exception.NewWriteError("writer", "書き込みに失敗しました", errors.New("disk full"))
	assert.True(t, se.MarkAsFailed(cause))
	assert.False(t, se.MarkAsCompleted())
	assert.False(t, se.MarkAsStopped())
	se.MarkAsStarted()

	assert.Equal(t, BatchStatusFailed, se.Status)
	assert.Equal(t, ExitStatusFailed, se.ExitStatus)

	detail, ok := se.Failure()
	require.True(t, ok)
	assert.Equal(t, exception.KindWrite, detail.Kind)
	assert.Equal(t, "[writer] 書き込みに失敗しました: disk full", detail.Message)
}

func TestJobExecution_ConcurrentStepExecutions(t *testing.T) {
	je := NewJobExecution("instance", "job", NewJobParameters(nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			je.AddStepExecution(NewStepExecution("step", je))
		}()
	}
	wg.Wait()

	assert.Len(t, je.StepExecutions(), 50)
}

func TestJobExecution_StepLookup(t *testing.T) {
	je := NewJobExecution("instance", "job", NewJobParameters(nil))
	se := NewStepExecution("step1", je)
	se.MarkAsCompleted()
	je.AddStepExecution(se)

	found, ok := je.StepExecution("step1")
	require.True(t, ok)
	assert.Same(t, se, found)
	_, ok = je.StepExecution("step2")
	assert.False(t, ok)
	assert.Equal(t, map[string]JobStatus{"step1": BatchStatusCompleted}, je.StepStatuses())
}

func TestJobStatus(t *testing.T) {
	assert.True(t, BatchStatusCompleted.IsFinished())
	assert.True(t, BatchStatusStopped.IsFinished())
	assert.False(t, BatchStatusStarted.IsFinished())
	assert.Equal(t, ExitStatusStopped, BatchStatusStopped.ToExitStatus())
	assert.Equal(t, ExitStatusUnknown, BatchStatusStarting.ToExitStatus())
}

func TestJobParameters_Immutable(t *testing.T) {
	src := map[string]string{"inputFlatFile": "/data/csv/transactions.csv"}
	params := NewJobParameters(src)
	src["inputFlatFile"] = "changed"

	v, ok := params.Get("inputFlatFile")
	require.True(t, ok)
	assert.Equal(t, "/data/csv/transactions.csv", v)

	out := params.ToMap()
	out["inputFlatFile"] = "changed"
	assert.Equal(t, "/data/csv/transactions.csv", params.GetString("inputFlatFile", ""))

	next := params.With("run.id", "2")
	assert.False(t, params.Has("run.id"))
	assert.True(t, next.Has("run.id"))
	assert.Equal(t, []string{"inputFlatFile", "run.id"}, next.Names())
	assert.Equal(t, []string{"run.id"}, params.Missing([]string{"inputFlatFile", "run.id"}))
}

func TestJobParameters_HashAndJSON(t *testing.T) {
	a := NewJobParameters(map[string]string{"a": "1", "b": "2"})
	b := NewJobParameters(map[string]string{"b": "2", "a": "1"})
	c := NewJobParameters(map[string]string{"a": "1", "b": "3"})

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Equal(t, "{a=1, b=2}", a.String())

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"1","b":"2"}`, string(data))

	var decoded JobParameters
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, a.ToMap(), decoded.ToMap())

	empty, err := json.Marshal(JobParameters{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}
