package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogThroughZap(t *testing.T) {
	var buf bytes.Buffer
	zl, err := newLogger(&buf, "debug")
	require.NoError(t, err)

	logger := newSlogLogger(zl).With("adapter_id", "sim").WithGroup("push")
	logger.Info("subscription added",
		slog.Int("count", 3),
		slog.Group("sub", slog.String("mode", "active")),
	)
	require.NoError(t, zl.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "subscription added", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "sim", entry["adapter_id"])
	group, ok := entry["push"].(map[string]any)
	require.True(t, ok, "group nests under its name: %v", entry)
	assert.Equal(t, float64(3), group["count"])
	assert.Equal(t, map[string]any{"mode": "active"}, group["sub"])
	assert.Contains(t, entry, "timestamp")
}

func TestSlogThroughZap_Level(t *testing.T) {
	var buf bytes.Buffer
	zl, err := newLogger(&buf, "warn")
	require.NoError(t, err)
	logger := newSlogLogger(zl)

	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	logger.Info("dropped")
	logger.Debug("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}
