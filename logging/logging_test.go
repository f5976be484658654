package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_FileOutput(t *testing.T) {
	// GIVEN: A json logger writing to a file at warn level
	// WHEN: An info and a warn line are logged
	// THEN: Only the warn line reaches the file, as one JSON object

	path := filepath.Join(t.TempDir(), "engine.log")
	logger, err := New(Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("skipped")
	logger.Warn("sweep slow", zap.String("finance_book", "Main Book"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "sweep slow", entry["msg"])
	assert.Equal(t, "Main Book", entry["finance_book"])
}

func TestNew_UnwritableOutput(t *testing.T) {
	_, err := New(Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "missing", "engine.log")})
	assert.Error(t, err)
}

func TestNewForEnvironment(t *testing.T) {
	logger, err := NewForEnvironment("production")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
