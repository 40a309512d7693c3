package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/lowc1012/flight-change-api/internal/store"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	healthTimeout = 2 * time.Second
)

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker reports whether the window store is reachable.
type HealthChecker struct {
	store   store.WindowStore
	version string
}

func NewHealthChecker(s store.WindowStore, version string) *HealthChecker {
	return &HealthChecker{store: s, version: version}
}

// Check pings the store. The server is healthy only while the store is
// connected.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			checks["store"] = h.store.State().String() + ": " + err.Error()
			healthy = false
		} else {
			checks["store"] = h.store.State().String()
		}
	} else {
		checks["store"] = "not configured"
		healthy = false
	}

	checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

	status := statusHealthy
	if !healthy {
		status = statusUnhealthy
	}
	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns the HTTP handler of the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		health := h.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if health.Status != statusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
