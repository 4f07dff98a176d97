package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow metrics
	FlowOperationsTotal   *prometheus.CounterVec
	FlowOperationDuration *prometheus.HistogramVec
	SignInsTotal          *prometheus.CounterVec
	ResumeTokensTotal     *prometheus.CounterVec

	// User store metrics
	UserStoreErrorsTotal *prometheus.CounterVec

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threshold_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threshold_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		FlowOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threshold_flow_operations_total",
				Help: "Total number of login flow operations by outcome",
			},
			[]string{"operation", "result"},
		),
		FlowOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threshold_flow_operation_duration_seconds",
				Help:    "Login flow operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		SignInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threshold_signins_total",
				Help: "Total number of completed sign-ins by kind (final, partial)",
			},
			[]string{"kind"},
		),
		ResumeTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threshold_resume_tokens_total",
				Help: "Resume token checks by outcome (consumed, replayed, mismatch, error)",
			},
			[]string{"outcome"},
		),

		UserStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threshold_user_store_errors_total",
				Help: "Total number of user store failures",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FlowOperationsTotal,
		m.FlowOperationDuration,
		m.SignInsTotal,
		m.ResumeTokensTotal,
		m.UserStoreErrorsTotal,
	)

	return m
}

// WithOTel also exports the flow counters through o
func (m *Metrics) WithOTel(o *OTelMetrics) *Metrics {
	m.otel = o
	return m
}

// ObserveFlow records one finished flow operation
func (m *Metrics) ObserveFlow(ctx context.Context, operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FlowOperationsTotal.WithLabelValues(operation, result).Inc()
	m.FlowOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if m.otel != nil {
		m.otel.RecordFlow(ctx, operation, result, elapsed)
	}
}

// RecordSignIn counts a completed sign-in
func (m *Metrics) RecordSignIn(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.SignInsTotal.WithLabelValues(kind).Inc()
	if m.otel != nil {
		m.otel.RecordSignIn(ctx, kind)
	}
}

// RecordResume counts a resume token check
func (m *Metrics) RecordResume(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ResumeTokensTotal.WithLabelValues(outcome).Inc()
	if m.otel != nil {
		m.otel.RecordResume(ctx, outcome)
	}
}

// RecordUserStoreError counts a user store failure
func (m *Metrics) RecordUserStoreError(operation string) {
	if m == nil {
		return
	}
	m.UserStoreErrorsTotal.WithLabelValues(operation).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to bound cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
