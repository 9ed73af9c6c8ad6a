package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/gatehouse/pkg/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupTestAuthMiddleware(t *testing.T) (*AuthMiddleware, *session.Manager) {
	t.Helper()
	manager, err := session.NewManager(session.Config{
		Secret:   testSecret,
		Issuer:   "test-issuer",
		Audience: "test-audience",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	return NewAuthMiddleware(manager, "/login", zerolog.New(zerolog.NewTestWriter(t))), manager
}

func signedCookie(t *testing.T, claims jwt.MapClaims) *http.Cookie {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserID(r.Context())
	_, _ = w.Write([]byte(userID))
}

func TestAuthMiddleware_RequireSession(t *testing.T) {
	m, manager := setupTestAuthMiddleware(t)

	r := chi.NewRouter()
	r.With(m.RequireSession).Get("/api/profile", echoUser)

	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "testuser",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iss": "test-issuer",
			"aud": "test-audience",
		}
	}

	t.Run("successful authentication", func(t *testing.T) {
		token, expires, err := manager.Issue("testuser")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		req.AddCookie(manager.Cookie(token, expires))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "testuser", rec.Body.String())
	})

	tests := []struct {
		name   string
		cookie func(t *testing.T) *http.Cookie
	}{
		{"missing cookie", func(t *testing.T) *http.Cookie { return nil }},
		{"invalid token", func(t *testing.T) *http.Cookie {
			return &http.Cookie{Name: session.CookieName, Value: "invalid.token.here"}
		}},
		{"expired token", func(t *testing.T) *http.Cookie {
			claims := valid()
			claims["exp"] = time.Now().Add(-time.Hour).Unix()
			return signedCookie(t, claims)
		}},
		{"invalid issuer", func(t *testing.T) *http.Cookie {
			claims := valid()
			claims["iss"] = "wrong-issuer"
			return signedCookie(t, claims)
		}},
		{"invalid audience", func(t *testing.T) *http.Cookie {
			claims := valid()
			claims["aud"] = "wrong-audience"
			return signedCookie(t, claims)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if c := tt.cookie(t); c != nil {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
}

func TestAuthMiddleware_RequirePage(t *testing.T) {
	m, manager := setupTestAuthMiddleware(t)

	r := chi.NewRouter()
	r.With(m.RequirePage).Get("/dashboard", echoUser)

	t.Run("redirects without session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("passes with session", func(t *testing.T) {
		token, expires, err := manager.Issue("testuser")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(manager.Cookie(token, expires))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "testuser", rec.Body.String())
	})
}

func TestLoggingMiddleware_RecordsUser(t *testing.T) {
	m, manager := setupTestAuthMiddleware(t)

	var buf bytes.Buffer
	logging := NewLoggingMiddleware(zerolog.New(&buf))

	r := chi.NewRouter()
	r.Use(logging.Handler)
	r.With(m.RequireSession).Get("/api/profile", echoUser)

	token, expires, err := manager.Issue("testuser")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(manager.Cookie(token, expires))
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"user":"testuser"`)
	assert.Contains(t, buf.String(), `"route":"/api/profile"`)
	assert.Contains(t, buf.String(), `"status":200`)
}
