package serialization

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

func TestFailures_KeepKindAndMessage(t *testing.T) {
	original := []error{
		exception.NewWriteError("writer", "チャンクの書き込みに失敗しました", errors.New("duplicate key")),
		errors.New("plain error"),
	}

	data, err := MarshalFailures(original)
	require.NoError(t, err)

	restored, err := UnmarshalFailures(data)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.Equal(t, exception.KindWrite, exception.KindOf(restored[0]))
	assert.Equal(t, original[0].Error(), restored[0].Error())
	assert.Equal(t, exception.KindUnknown, exception.KindOf(restored[1]))
	assert.Equal(t, "plain error", restored[1].Error())
}

func TestFailures_Empty(t *testing.T) {
	data, err := MarshalFailures(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	restored, err := UnmarshalFailures(nil)
	require.NoError(t, err)
	assert.Empty(t, restored)

	_, err = UnmarshalFailures([]byte("{broken"))
	assert.Error(t, err)
}

func TestExecutionContext(t *testing.T) {
	data, err := MarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	ec := core.NewExecutionContext()
	ec.Put("lastAccount", "ACC-1")
	data, err = MarshalExecutionContext(ec)
	require.NoError(t, err)

	restored, err := UnmarshalExecutionContext(data)
	require.NoError(t, err)
	v, ok := restored.Get("lastAccount")
	assert.True(t, ok)
	assert.Equal(t, "ACC-1", v)

	restored, err = UnmarshalExecutionContext([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, restored)
}

func TestJobParameters(t *testing.T) {
	params := core.NewJobParameters(map[string]string{"inputFlatFile": "/data/csv/transactions.csv"})
	data, err := MarshalJobParameters(params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputFlatFile":"/data/csv/transactions.csv"}`, string(data))

	restored, err := UnmarshalJobParameters(data)
	require.NoError(t, err)
	assert.Equal(t, params.Hash(), restored.Hash())

	restored, err = UnmarshalJobParameters(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Len())
}
