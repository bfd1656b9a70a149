package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.in), tt.in)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Component(NewLogger(buf, "info", "json", "agent-1"), "supervisor")

	logger.Debug("hidden")
	logger.Info("connected", "addr", "ws://x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "agent-1", entry["agent_id"])
	assert.Equal(t, "supervisor", entry["component"])
	assert.Equal(t, "ws://x", entry["addr"])
}

func TestNewLoggerText(t *testing.T) {
	buf := &bytes.Buffer{}
	NewLogger(buf, "debug", "text", "").Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
