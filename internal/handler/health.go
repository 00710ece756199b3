// Package handler contains the HTTP handlers of the todo API.
//
// Handlers are the glue between HTTP and the service layer:
//  1. parse the request (path params, JSON body)
//  2. call the service
//  3. write the response through writeJSON / WriteError
//
// No business rule lives here.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/todo-api/internal/repository"
)

const (
	appName    = "Todo API"
	appVersion = "1.0.0"

	readinessTimeout = 3 * time.Second
)

// HealthHandler serves the liveness, readiness and root info endpoints.
type HealthHandler struct {
	db    repository.Pinger
	redis *redis.Client // nil when Redis is not configured
}

// NewHealthHandler takes the database and an optional Redis client.
func NewHealthHandler(db repository.Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// HandleRoot identifies the service.
//
// HTTP: GET /
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"name": appName, "version": appVersion})
}

// HandleLiveness confirms the process is up. It touches no dependency.
//
// HTTP: GET /health
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

// HandleReadiness pings every dependency and answers 503 if any is down.
//
// HTTP: GET /health/ready
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	deps := make(map[string]dependencyStatus, 2)
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		deps["database"] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
		healthy = false
	} else {
		deps["database"] = dependencyStatus{Status: "ok"}
	}

	switch {
	case h.redis == nil:
		deps["redis"] = dependencyStatus{Status: "disabled"}
	default:
		if err := h.redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
		} else {
			deps["redis"] = dependencyStatus{Status: "ok"}
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, readinessResponse{Status: status, Dependencies: deps})
}
