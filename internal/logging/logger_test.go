package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/aquacache/internal/config"
)

func TestNewAcceptsSupportedLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		logger, err := New(config.LoggingConfig{Level: level, Format: "json"})
		require.NoError(t, err, "level %q", level)
		require.NotNil(t, logger)
	}
}

func TestNewAcceptsSupportedFormats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		logger, err := New(config.LoggingConfig{Level: "info", Format: format})
		require.NoError(t, err, "format %q", format)
		require.NotNil(t, logger)
	}
}

func TestNewRejectsUnknownLevelAndFormat(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	require.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Format: "logfmt"})
	require.Error(t, err)
}

func TestNewHonorsLevelThreshold(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	require.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	require.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}
