package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// Version is reported by health checks; stamped at build time via -ldflags
var Version = "dev"

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker probes the datastores the service depends on
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// observe records a dependency result and folds its severity into the
// overall status. Optional dependencies degrade the service instead of
// failing it.
func (s *HealthStatus) observe(name string, dep DependencyStatus, optional bool) {
	s.Dependencies[name] = dep

	severity := dep.Status
	if optional && severity == StatusUnhealthy {
		severity = StatusDegraded
	}
	switch severity {
	case StatusUnhealthy:
		s.Status = StatusUnhealthy
	case StatusDegraded:
		if s.Status != StatusUnhealthy {
			s.Status = StatusDegraded
		}
	}
}

// timedCheck runs fn and wraps the outcome with its latency
func timedCheck(fn func() error) DependencyStatus {
	start := time.Now()
	err := fn()

	dep := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

// Check probes every configured dependency and reports the aggregate
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      Version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		status.observe("database", h.checkDatabase(ctx), false)
	}
	if h.redis != nil {
		// Redis only accelerates permission checks, so losing it is a
		// degradation rather than an outage.
		status.observe("redis", h.checkRedis(ctx), true)
	}

	return status
}

// checkDatabase verifies PostgreSQL answers queries and the pool has headroom
func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	dep := timedCheck(func() error {
		if err := h.db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return nil
	})
	if dep.Status != StatusHealthy {
		return dep
	}

	if stats := h.db.Stats(); stats.OpenConnections >= stats.MaxOpenConnections {
		dep.Status = StatusDegraded
		dep.Message = "connection pool exhausted"
	}
	return dep
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	return timedCheck(func() error {
		return h.redis.Ping(ctx).Err()
	})
}

// Liveness is a trivial probe reporting that the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness checks all dependencies. Unhealthy maps to 503; degraded
// still serves traffic.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
