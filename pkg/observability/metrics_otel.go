package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the login flow counters as OTLP instruments
type OTelMetrics struct {
	flowOperations metric.Int64Counter
	flowDuration   metric.Float64Histogram
	signIns        metric.Int64Counter
	resumeTokens   metric.Int64Counter
}

// NewOTelMetrics creates the flow instruments on meter
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.flowOperations, err = meter.Int64Counter(
		"threshold.flow.operations",
		metric.WithDescription("Login flow operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow_operations counter: %w", err)
	}

	m.flowDuration, err = meter.Float64Histogram(
		"threshold.flow.duration",
		metric.WithDescription("Login flow operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow_duration histogram: %w", err)
	}

	m.signIns, err = meter.Int64Counter(
		"threshold.signins",
		metric.WithDescription("Completed sign-ins by kind"),
		metric.WithUnit("{signin}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signins counter: %w", err)
	}

	m.resumeTokens, err = meter.Int64Counter(
		"threshold.resume.tokens",
		metric.WithDescription("Resume token checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resume_tokens counter: %w", err)
	}

	return m, nil
}

// RecordFlow records a finished flow operation
func (m *OTelMetrics) RecordFlow(ctx context.Context, operation, result string, elapsed time.Duration) {
	m.flowOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow.operation", operation),
		attribute.String("flow.result", result),
	))
	m.flowDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("flow.operation", operation),
	))
}

// RecordSignIn counts a completed sign-in
func (m *OTelMetrics) RecordSignIn(ctx context.Context, kind string) {
	m.signIns.Add(ctx, 1, metric.WithAttributes(attribute.String("signin.kind", kind)))
}

// RecordResume counts a resume token check
func (m *OTelMetrics) RecordResume(ctx context.Context, outcome string) {
	m.resumeTokens.Add(ctx, 1, metric.WithAttributes(attribute.String("resume.outcome", outcome)))
}
