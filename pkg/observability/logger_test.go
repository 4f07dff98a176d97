package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/platinummonkey/threshold/pkg/contextkeys"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "default format", level: "DEBUG", format: ""},
		{name: "text", level: "warn", format: "text"},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format, &bytes.Buffer{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("Expected a logger")
			}
		})
	}
}

func TestNewLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", FormatJSON, &buf)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Error("Debug message should not be logged at info level")
	}

	logger.WithField("signin_id", "abc").Info("Login page rendered")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if entry["msg"] != "Login page rendered" {
		t.Errorf("Unexpected message %v", entry["msg"])
	}
	if entry["signin_id"] != "abc" {
		t.Errorf("Expected signin_id field, got %v", entry["signin_id"])
	}
}

func TestLoggerFrom(t *testing.T) {
	fallback, hook := test.NewNullLogger()

	t.Run("fallback carries request id", func(t *testing.T) {
		hook.Reset()
		ctx := contextkeys.WithRequestID(context.Background(), "req-1")
		LoggerFrom(ctx, fallback).Info("hello")

		entry := hook.LastEntry()
		if entry == nil {
			t.Fatal("Expected a log entry")
		}
		if entry.Data["request_id"] != "req-1" {
			t.Errorf("Expected request_id req-1, got %v", entry.Data["request_id"])
		}
	})

	t.Run("stored entry wins", func(t *testing.T) {
		hook.Reset()
		stored := fallback.WithField("path", "/core/login")
		ctx := contextkeys.WithLogger(context.Background(), stored)
		LoggerFrom(ctx, logrus.New()).Info("hello")

		entry := hook.LastEntry()
		if entry == nil {
			t.Fatal("Expected the stored entry's logger to be used")
		}
		if entry.Data["path"] != "/core/login" {
			t.Errorf("Expected path field, got %v", entry.Data)
		}
	})

	t.Run("nil fallback", func(t *testing.T) {
		if LoggerFrom(context.Background(), nil) == nil {
			t.Fatal("Expected an entry from the standard logger")
		}
	})
}

func TestWithTraceContext(t *testing.T) {
	logger, hook := test.NewNullLogger()

	WithTraceContext(context.Background(), logrus.NewEntry(logger)).Info("no span")
	if _, ok := hook.LastEntry().Data["trace_id"]; ok {
		t.Error("Expected no trace_id without a span")
	}

	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())
	ctx, span := provider.Tracer("test").Start(context.Background(), "flow.login")
	defer span.End()

	WithTraceContext(ctx, logrus.NewEntry(logger)).Info("with span")
	entry := hook.LastEntry()
	if entry.Data["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), entry.Data["trace_id"])
	}
	if entry.Data["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("Expected span_id %s, got %v", span.SpanContext().SpanID(), entry.Data["span_id"])
	}
}

func TestLogPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	func() {
		defer RecoverPanic(logger, "health server")
		panic("boom")
	}()

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected the panic to be logged")
	}
	if entry.Level != logrus.ErrorLevel {
		t.Errorf("Expected error level, got %s", entry.Level)
	}
	if entry.Data["panic"] != "boom" || entry.Data["context"] != "health server" {
		t.Errorf("Unexpected fields %v", entry.Data)
	}
	if entry.Data["stack"] == "" {
		t.Error("Expected a stack trace")
	}
}
