package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/startlights/settings"
)

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(settings.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("attempt resolved", zap.Int("attempt", 2))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "attempt resolved")
	assert.Contains(t, out, `"attempt": 2`)
}

func TestNewWritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := settings.LoggingConfig{
		Level:      "debug",
		Directory:  dir,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}

	var console bytes.Buffer
	logger, err := newLogger(cfg, &console)
	require.NoError(t, err)

	logger.Warn("upload failed", zap.String("sink", "http"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "upload failed", entry["message"])
	assert.Equal(t, "http", entry["sink"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(settings.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
