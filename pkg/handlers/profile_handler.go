package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/services"
	"github.com/TFMV/gatehouse/pkg/session"
)

// ProfileHandler serves the profile API.
type ProfileHandler struct {
	profiles services.ProfileService
	logger   Logger
	metrics  MetricsCollector
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles services.ProfileService, logger Logger, metrics MetricsCollector) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
		metrics:  metrics,
	}
}

// GetOwn handles GET /api/profile.
func (h *ProfileHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.UserID(r.Context())
	if !ok {
		writeError(w, r, h.logger, errors.ErrSessionRequired)
		return
	}

	user, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateOwn handles PUT /api/profile.
func (h *ProfileHandler) UpdateOwn(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_update_profile")
	defer timer.Stop()

	userID, ok := session.UserID(r.Context())
	if !ok {
		writeError(w, r, h.logger, errors.ErrSessionRequired)
		return
	}

	var update models.ProfileUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.profiles.Update(r.Context(), userID, &update)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// GetUser handles GET /api/users/{id} and returns the public profile.
func (h *ProfileHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}
