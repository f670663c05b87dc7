package log

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// ForRequest returns a copy of ctx carrying base tagged with requestID.
func ForRequest(ctx context.Context, base *Logger, requestID string) context.Context {
	return NewContext(ctx, base.With(NewFields().WithRequestID(requestID).ToSlice()...))
}

// FromContext returns the logger stored by NewContext, or one wrapping
// slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}
