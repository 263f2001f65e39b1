package api

import (
	"net/http"

	"github.com/ashureev/brieflab/internal/healthcheck"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler handles health check and metrics endpoints.
type HealthHandler struct {
	checker *healthcheck.Checker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker *healthcheck.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, report)
}

// RegisterHealth registers the health check and Prometheus routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
}
