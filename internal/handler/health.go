package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and store reachability.
type HealthHandler struct {
	store       Pinger
	version     string
	environment string
	started     time.Time
	logger      *slog.Logger
	now         func() time.Time
}

// NewHealthHandler creates a HealthHandler. Uptime is counted from now.
func NewHealthHandler(store Pinger, version, environment string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:       store,
		version:     version,
		environment: environment,
		started:     time.Now(),
		logger:      logger,
		now:         time.Now,
	}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
	Store       string `json:"store"`
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// HandleHealth answers 200 when the store responds to a ping, 503 otherwise.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	resp := HealthResponse{
		Status:      "healthy",
		Service:     "forkwatch",
		Version:     h.version,
		Environment: h.environment,
		Uptime:      fmt.Sprintf("%d seconds", int(now.Sub(h.started).Seconds())),
		Store:       "ok",
		Timestamp:   now.UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("health check: store unreachable", slog.String("error", err.Error()))
		resp.Status = "unhealthy"
		resp.Store = "unreachable"
		resp.Error = "Health check failed"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
