package log

import (
	"context"
	"log/slog"
	"net/http"
)

// StructuredLogger writes the request and receipt events with a fixed
// field layout.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPStart logs an incoming request.
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs a finished request at a level picked from its status.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, statusLevel(statusCode), "HTTP request completed", fields.ToSlice()...)
}

func statusLevel(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogReceiptScanned logs a finished extraction.
func (sl *StructuredLogger) LogReceiptScanned(ctx context.Context, reviewID string, itemCount int, mime string, size int) {
	fields := NewFields().
		WithReceipt(reviewID, itemCount).
		WithUpload(mime, size).
		WithOperation(OpScan).
		WithComponent(ComponentReceipt)

	sl.logger.InfoContext(ctx, "Receipt scanned", fields.ToSlice()...)
}

// LogBatchCommitted logs a committed review.
func (sl *StructuredLogger) LogBatchCommitted(ctx context.Context, reviewID string, itemCount int, totalCents int64) {
	fields := NewFields().
		WithReceipt(reviewID, itemCount).
		WithOperation(OpCommit).
		WithComponent(ComponentExpense).
		ToSlice()

	fields = append(fields, FieldAmountCents, totalCents)

	sl.logger.InfoContext(ctx, "Expense batch committed", fields...)
}
