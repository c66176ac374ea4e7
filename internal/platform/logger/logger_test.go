package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/config"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("honors configured level", func(t *testing.T) {
		logger := Setup(config.ServerConfig{LogLevel: "debug"})
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

		logger = Setup(config.ServerConfig{LogLevel: "error"})
		assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
		assert.True(t, logger.Enabled(ctx, slog.LevelError))
	})

	t.Run("level parsing is case-insensitive", func(t *testing.T) {
		logger := Setup(config.ServerConfig{LogLevel: "WARN"})
		assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
		assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger := Setup(config.ServerConfig{LogLevel: "verbose"})
		assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
		assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	})

	t.Run("sets the process default", func(t *testing.T) {
		logger := Setup(config.ServerConfig{LogLevel: "info"})
		assert.Equal(t, logger.Handler(), slog.Default().Handler())
	})
}
