package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/threshold/pkg/contextkeys"
)

// Log formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger creates a logrus logger writing to output at the named level
// ("debug", "info", "warn", "error") in the named format ("json", "text").
func NewLogger(level, format string, output io.Writer) (*logrus.Logger, error) {
	if output == nil {
		output = os.Stdout
	}

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return logger, nil
}

// LoggerFrom returns the request scoped entry stored in ctx, or an entry of
// fallback carrying whatever request fields ctx has.
func LoggerFrom(ctx context.Context, fallback *logrus.Logger) *logrus.Entry {
	if entry, ok := ctx.Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return WithTraceContext(ctx, entry)
	}
	if fallback == nil {
		fallback = logrus.StandardLogger()
	}
	entry := logrus.NewEntry(fallback)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return WithTraceContext(ctx, entry)
}

// WithTraceContext adds the active span's ids to entry
func WithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return entry
	}

	spanCtx := span.SpanContext()
	return entry.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
