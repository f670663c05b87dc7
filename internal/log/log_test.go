package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentReceipt, Handler: NewHandler(&buf, slog.LevelInfo, "json")})

	logger.Info("scanned", FieldItemCount, 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if entry[FieldComponent] != ComponentReceipt {
		t.Errorf("component = %v, want %s", entry[FieldComponent], ComponentReceipt)
	}
	if entry[FieldItemCount] != float64(3) {
		t.Errorf("item_count = %v, want 3", entry[FieldItemCount])
	}
}

func TestNewHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: "x", Handler: NewHandler(&buf, slog.LevelWarn, "text")})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentExpense).
		WithExpense("id-1", "Milk", 350, "grocery").
		WithReceipt("", 2).
		WithError(nil)

	if _, ok := f[FieldError]; ok {
		t.Error("nil error should not add a field")
	}
	if _, ok := f[FieldReviewID]; ok {
		t.Error("empty review id should not add a field")
	}
	if f[FieldCategoryID] != "grocery" || f[FieldItemCount] != 2 {
		t.Errorf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Errorf("ToSlice length = %d, want %d", len(f.ToSlice()), 2*len(f))
	}

	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Errorf("error field = %v", f[FieldError])
	}
}

func TestForRequestTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentTrace, Handler: NewHandler(&buf, slog.LevelInfo, "json")})

	ctx := ForRequest(context.Background(), base, "req_abc")
	got := FromContext(ctx)
	if got.Component() != ComponentTrace {
		t.Fatalf("component = %q, want %q", got.Component(), ComponentTrace)
	}
	got.InfoContext(ctx, "hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if line[FieldRequestID] != "req_abc" {
		t.Errorf("%s = %v, want req_abc", FieldRequestID, line[FieldRequestID])
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("FromContext without a logger should fall back to the default")
	}
}
