package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kevin07696/pgpool/internal/pool"
)

// HealthStatus represents the health status of the service.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Stats     *pool.Stats       `json:"pool_stats,omitempty"`
}

// HealthChecker manages health checks for a pgpool-backed service.
type HealthChecker struct {
	p *pool.Pool
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(p *pool.Pool) *HealthChecker {
	return &HealthChecker{p: p}
}

// Check performs health checks and returns the status. A SELECT 1 run
// through the pool's normal Query path (so it exercises the same
// acquire/retry machinery a real caller would hit) stands in for a
// liveness ping.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	if h.p != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if _, err := h.p.Query(dbCtx, "SELECT 1", nil); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	var stats *pool.Stats
	if h.p != nil {
		s := h.p.Stats()
		stats = &s
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    checks,
		Stats:     stats,
	}
}

// HealthHandler returns an HTTP handler for health checks.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	}
}
