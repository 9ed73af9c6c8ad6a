package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/services"
	"github.com/TFMV/gatehouse/pkg/session"
)

// mockAuthService implements services.AuthService
type mockAuthService struct {
	registerFunc func(ctx context.Context, req *models.RegisterRequest) (*services.AuthResult, error)
	loginFunc    func(ctx context.Context, req *models.LoginRequest) (*services.AuthResult, error)
}

func (m *mockAuthService) Register(ctx context.Context, req *models.RegisterRequest) (*services.AuthResult, error) {
	return m.registerFunc(ctx, req)
}

func (m *mockAuthService) Login(ctx context.Context, req *models.LoginRequest) (*services.AuthResult, error) {
	return m.loginFunc(ctx, req)
}

// mockProfileService implements services.ProfileService
type mockProfileService struct {
	getFunc    func(ctx context.Context, userID string) (*models.User, error)
	updateFunc func(ctx context.Context, userID string, update *models.ProfileUpdate) (*models.User, error)
}

func (m *mockProfileService) Get(ctx context.Context, userID string) (*models.User, error) {
	return m.getFunc(ctx, userID)
}

func (m *mockProfileService) Update(ctx context.Context, userID string, update *models.ProfileUpdate) (*models.User, error) {
	return m.updateFunc(ctx, userID, update)
}

// mockLogger implements Logger
type mockLogger struct {
	errors []string
}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.errors = append(m.errors, msg)
}

// mockMetricsCollector implements MetricsCollector
type mockMetricsCollector struct{}

func (m *mockMetricsCollector) IncrementCounter(name string, tags ...string)               {}
func (m *mockMetricsCollector) RecordHistogram(name string, value float64, tags ...string) {}
func (m *mockMetricsCollector) RecordGauge(name string, value float64, tags ...string)     {}
func (m *mockMetricsCollector) StartTimer(name string) Timer                               { return &mockTimer{} }

// mockTimer implements Timer
type mockTimer struct{}

func (m *mockTimer) Stop() {}

// mockCookies implements CookieIssuer
type mockCookies struct{}

func (m *mockCookies) Cookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{Name: session.CookieName, Value: token, Path: "/", Expires: expires, HttpOnly: true}
}

func (m *mockCookies) ClearCookie() *http.Cookie {
	return &http.Cookie{Name: session.CookieName, Path: "/", MaxAge: -1, HttpOnly: true}
}

func withUser(r *http.Request, userID string) *http.Request {
	claims := &session.Claims{}
	claims.Subject = userID
	return r.WithContext(session.WithClaims(r.Context(), claims))
}
