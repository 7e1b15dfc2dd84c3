package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbPingTimeout = 2 * time.Second

// HealthStatus is the JSON body served on the health endpoint
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker probes the service's hard dependencies. The settlement
// sweeps cannot make progress without the database, so an unhealthy
// pool marks the whole service unhealthy.
type HealthChecker struct {
	dbPool *pgxpool.Pool
}

func NewHealthChecker(dbPool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{dbPool: dbPool}
}

// Check probes each dependency and aggregates the result
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    map[string]string{},
	}

	if h.dbPool == nil {
		status.Checks["database"] = "not configured"
		return status
	}

	if err := h.pingDB(ctx); err != nil {
		status.Checks["database"] = "unhealthy: " + err.Error()
		status.Status = "unhealthy"
	} else {
		status.Checks["database"] = "healthy"
	}

	return status
}

func (h *HealthChecker) pingDB(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	return h.dbPool.Ping(pingCtx)
}

// HealthHandler serves the aggregated health status; 503 when any
// dependency check fails
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if result.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(result)
	}
}
