// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown, and OpenTelemetry initialization for the
// chronicle server and tools.
//
// # Structured Logging
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("library", lib).Info("Server started")
//
// # Prometheus Metrics
//
// Server metrics register on a caller-owned registry alongside the audit
// metrics from pkg/audit:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	handler = observability.HTTPMetricsMiddleware(metrics)(handler)
//	observability.RegisterMetricsEndpoint(mux, registry)
//
// # Health Checks
//
// The checker probes the audit log path plus the optional archive database
// and Redis cache:
//
//	checker := observability.NewHealthChecker(logPath, db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Graceful Shutdown
//
//	observability.GracefulShutdown(logger, server,
//		func(ctx context.Context) error { return auditLogger.Close() },
//	)
package observability
