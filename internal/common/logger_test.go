package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogHelpersUseContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), logger)

	LogError(ctx, errors.New("boom"), "batch failed", Fields{"window_id": "monthly:2025-01", "granularity": "monthly"})
	LogDebug(ctx, "window skipped", Fields{"window_id": "weekly:2025-01-06"})

	out := buf.String()
	assert.Contains(t, out, `level=ERROR msg="batch failed" error=boom granularity=monthly window_id=monthly:2025-01`)
	assert.Contains(t, out, `level=DEBUG msg="window skipped" window_id=weekly:2025-01-06`)
}

func TestLoggerFallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), Logger(context.Background()))
}

func TestSetupLoggerRejectsUnknownFormat(t *testing.T) {
	assert.ErrorIs(t, SetupLogger(slog.LevelInfo, "xml"), ErrInvalidConfig)
}
