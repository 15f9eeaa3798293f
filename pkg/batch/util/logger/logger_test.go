package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLogLevel("INFO")
		SetFormat("text")
	})

	SetLogLevel("warn")
	assert.Equal(t, LevelWarn, CurrentLevel())

	Infof("表示されない %d", 1)
	Warnf("表示される %d", 2)

	assert.NotContains(t, buf.String(), "表示されない")
	assert.Contains(t, buf.String(), "表示される 2")

	SetLogLevel("unknown")
	assert.Equal(t, LevelInfo, CurrentLevel())
}

func TestWithFields_JSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	t.Cleanup(func() { SetFormat("text") })

	WithFields(map[string]any{"step": "step1", "chunk": 3}).Info("チャンクをコミットしました")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step1", entry["step"])
	assert.Equal(t, float64(3), entry["chunk"])
	assert.Equal(t, "チャンクをコミットしました", entry["msg"])
}
