// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure including logrus
// logging, metrics collection, health checks, and distributed tracing.
//
// # Structured Logging
//
// Create logger:
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	logger.WithField("port", 8080).Info("Server started")
//
// Request scoped logging picks up the entry stored by the HTTP middleware:
//
//	observability.LoggerFrom(ctx, logger).WithError(err).Error("Sign-in failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveFlow(ctx, "login", "login_page", elapsed)
//	metrics.RecordSignIn(ctx, "partial")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		ServiceName: "threshold",
//		Endpoint:    "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// With a meter provider installed, the flow counters can also be exported:
//
//	om, err := observability.NewOTelMetrics(observability.Meter())
//	metrics.WithOTel(om)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
