package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/devil-deal/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn"}, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New(config.LogConfig{Level: "warn"}, true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, false)
	assert.ErrorContains(t, err, "log.level")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "game.log")
	logger, err := New(config.LogConfig{Level: "info", File: path}, false)
	require.NoError(t, err)

	logger.Info("offer ready")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "offer ready")
}
