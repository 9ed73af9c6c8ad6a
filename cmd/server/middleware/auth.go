// Package middleware provides HTTP middleware for the gatehouse server.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/TFMV/gatehouse/pkg/session"
)

// SessionVerifier verifies the auth cookie of a request. *session.Manager
// satisfies it.
type SessionVerifier interface {
	FromRequest(r *http.Request) (*session.Claims, error)
}

// AuthMiddleware gates routes on a valid session cookie. It only verifies
// the signed token and never touches the database.
type AuthMiddleware struct {
	verifier  SessionVerifier
	loginPath string
	logger    zerolog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(verifier SessionVerifier, loginPath string, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		loginPath: loginPath,
		logger:    logger,
	}
}

// RequireSession rejects API requests without a valid session with 401.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticate(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithClaims(r.Context(), claims)))
	})
}

// RequirePage redirects page requests without a valid session to the login page.
func (m *AuthMiddleware) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticate(r)
		if !ok {
			http.Redirect(w, r, m.loginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithClaims(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*session.Claims, bool) {
	claims, err := m.verifier.FromRequest(r)
	if err != nil {
		m.logger.Debug().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Authentication failed")
		return nil, false
	}
	recordUser(r, claims.UserID())
	return claims, true
}
