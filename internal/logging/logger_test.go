package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelString(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, level)

	level, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("styles").With("step", "styles").
		Error(context.Background(), errors.New("boom"), "Error in CSS pipeline", "file", "app/css/index.css")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "Error in CSS pipeline", entry["msg"])
	assert.Equal(t, "styles", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "styles", entry["step"])
	assert.Equal(t, "app/css/index.css", entry["file"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden debug")
	logger.Info(context.Background(), "hidden info")
	logger.Warn(context.Background(), nil, "visible warning")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})
	_ = parent.With("child", true)

	parent.Info(context.Background(), "parent message")
	assert.NotContains(t, buf.String(), "child=true")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Error(context.Background(), errors.New("ignored"), "nothing happens")
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})

	op := StartOperation(logger, "images")
	d := op.End(context.Background())
	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
	assert.True(t, strings.Contains(buf.String(), "operation=images"))

	buf.Reset()
	op = StartOperation(logger, "scripts")
	op.EndWithError(context.Background(), errors.New("bundle failed"))
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), "bundle failed")
}
