package handlers

import (
	"net/http"

	"github.com/TFMV/gatehouse/pkg/infrastructure/conncache"
)

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	check  HealthCheck
	stats  func() conncache.Stats
	logger Logger
}

// NewHealthHandler creates a new health handler. stats may be nil.
func NewHealthHandler(check HealthCheck, stats func() conncache.Stats, logger Logger) *HealthHandler {
	return &HealthHandler{
		check:  check,
		stats:  stats,
		logger: logger,
	}
}

type healthResponse struct {
	Status   string           `json:"status"`
	Database *conncache.Stats `json:"database,omitempty"`
}

// Healthz acquires a connection and reports the outcome.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if err := h.check(r.Context()); err != nil {
		h.logger.Warn("Health check failed", "error", err)
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.stats != nil {
		stats := h.stats()
		resp.Database = &stats
	}

	writeJSON(w, status, resp)
}
