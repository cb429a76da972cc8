package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mathtutor/internal/inference"
	"github.com/ashureev/mathtutor/internal/speech"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/go-chi/chi/v5"
)

// credentialChecker validates inference configuration without network I/O.
type credentialChecker interface {
	CheckCredential() error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	creds   credentialChecker
	speech  *speech.Controller
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. creds and ctrl may be nil.
func NewHealthHandler(repo store.Repository, creds credentialChecker, ctrl *speech.Controller, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, creds: creds, speech: ctrl, timeout: timeout}
}

// Health returns the health status of the API and its dependencies. Only the
// database decides the status code; inference and speech are informational.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.creds != nil {
		if err := h.creds.CheckCredential(); err != nil {
			checks["inference"] = inference.ErrorKind(err)
		} else {
			checks["inference"] = "configured"
		}
	}

	if h.speech != nil {
		if h.speech.Available() {
			checks["speech"] = "available"
		} else {
			checks["speech"] = "unavailable"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
