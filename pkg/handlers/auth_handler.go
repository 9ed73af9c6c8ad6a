package handlers

import (
	"net/http"

	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/services"
)

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	auth    services.AuthService
	cookies CookieIssuer
	logger  Logger
	metrics MetricsCollector
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth services.AuthService, cookies CookieIssuer, logger Logger, metrics MetricsCollector) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		cookies: cookies,
		logger:  logger,
		metrics: metrics,
	}
}

type authResponse struct {
	User *models.User `json:"user"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_register")
	defer timer.Stop()

	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, h.cookies.Cookie(result.Token, result.ExpiresAt))
	writeJSON(w, http.StatusCreated, authResponse{User: result.User})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_login")
	defer timer.Stop()

	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, h.cookies.Cookie(result.Token, result.ExpiresAt))
	writeJSON(w, http.StatusOK, authResponse{User: result.User})
}

// Logout handles POST /api/auth/logout. It never touches the database.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookies.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}
