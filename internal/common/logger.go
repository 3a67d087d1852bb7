package common

import (
	"context"
	"log/slog"
	"os"
	"sort"
)

// LoggerKey is the context key for logger values.
type LoggerKey struct{}

// Fields represents structured logging fields.
type Fields map[string]any

// SetupLogger configures the global logger with appropriate settings.
func SetupLogger(level slog.Level, format string) error {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "console":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return ErrInvalidConfig
	}

	slog.SetDefault(slog.New(handler))

	return nil
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// Logger returns the context logger, or the default logger if none is set.
func Logger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// LogError logs an error with additional context.
func LogError(ctx context.Context, err error, msg string, fields Fields) {
	attrs := append([]slog.Attr{slog.String("error", err.Error())}, fields.attrs()...)
	Logger(ctx).LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

// LogInfo logs an info message with fields.
func LogInfo(ctx context.Context, msg string, fields Fields) {
	Logger(ctx).LogAttrs(ctx, slog.LevelInfo, msg, fields.attrs()...)
}

// LogDebug logs a debug message with fields.
func LogDebug(ctx context.Context, msg string, fields Fields) {
	Logger(ctx).LogAttrs(ctx, slog.LevelDebug, msg, fields.attrs()...)
}

// attrs converts fields to attributes in key order so log lines are stable.
func (f Fields) attrs() []slog.Attr {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(f))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, f[k]))
	}
	return attrs
}
