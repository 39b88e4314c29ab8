// Package observability provides structured logging, Prometheus metrics, and health checks.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, panic recovery, and graceful shutdown helpers.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("Server started")
//
// Context-aware logging:
//
//	logger.WithField("request_id", reqID).WithError(err).Error("Request failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/documents", "200").Inc()
//	metrics.PermissionChecksTotal.WithLabelValues("document", "allowed").Inc()
//
// Business metrics:
//
//	metrics.ActiveUsersTotal.Set(float64(activeUsers))
//	metrics.APIKeysActive.Set(float64(enabledKeys))
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//	fmt.Printf("Status: %s\n", status.Status)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/middleware: Request authentication and rate limiting
//   - pkg/permcache: Permission cache hit and miss counters
package observability
