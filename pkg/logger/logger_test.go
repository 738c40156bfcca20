package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerValidation(t *testing.T) {
	_, err := NewLogger(&Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = NewLogger(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	l, err := NewLogger(nil)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&Config{Level: "warn", Format: "text", Output: &buf})
	require.NoError(t, err)

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Errorf("error %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
	assert.Contains(t, out, "error 42")
}

func TestJSONFormatCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.WithComponent("engine").
		WithField("run_id", "abc123").
		WithFields(Fields{"score": 95.0}).
		Info("run complete")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "abc123", line["run_id"])
	assert.Equal(t, 95.0, line["score"])
	assert.Equal(t, "run complete", line["msg"])
}

func TestWithErrorField(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.WithError(fmt.Errorf("connection reset")).Error("lookup failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "connection reset", line["error"])
}

func TestGlobalLoggerSwap(t *testing.T) {
	orig := GetGlobalLogger()
	defer SetGlobalLogger(orig)

	var buf bytes.Buffer
	l, err := NewLogger(&Config{Level: "info", Format: "text", Output: &buf})
	require.NoError(t, err)

	SetGlobalLogger(l)
	GetGlobalLogger().Info("hello from swap")
	assert.Contains(t, buf.String(), "hello from swap")
}
