// Package session issues and verifies the signed session tokens carried in
// the auth cookie.
package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TFMV/gatehouse/pkg/errors"
)

// CookieName is the name of the auth cookie.
const CookieName = "token"

// Config configures a Manager.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	// Secure marks the cookie Secure. It is set in production.
	Secure bool
}

// Claims are the claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the authenticated user's id.
func (c *Claims) UserID() string {
	return c.Subject
}

// Manager issues and verifies session tokens.
type Manager struct {
	cfg    Config
	key    []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewManager creates a new session manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New(errors.CodeConfiguration, "session secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New(errors.CodeConfiguration, "session ttl must be positive")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{
		cfg:    cfg,
		key:    []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// Issue signs a token for userID and returns it with its expiry.
func (m *Manager) Issue(userID string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.cfg.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CodeInternal, "failed to sign session token")
	}
	return token, expires, nil
}

// Verify parses and validates a token.
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.ErrSessionRequired
	}

	var claims Claims
	_, err := m.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, "invalid session")
	}
	if claims.Subject == "" {
		return nil, errors.New(errors.CodeUnauthorized, "invalid session")
	}
	return &claims, nil
}

// FromRequest verifies the auth cookie of r.
func (m *Manager) FromRequest(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, errors.ErrSessionRequired
	}
	return m.Verify(cookie.Value)
}

// Cookie returns the auth cookie carrying token.
func (m *Manager) Cookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie returns a cookie that removes the auth cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
