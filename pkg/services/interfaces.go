// Package services contains business logic implementations.
package services

import (
	"context"
	"time"

	"github.com/TFMV/gatehouse/pkg/models"
)

// AuthService defines sign-up and login operations.
type AuthService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req *models.LoginRequest) (*AuthResult, error)
}

// ProfileService defines profile operations.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	Update(ctx context.Context, userID string, update *models.ProfileUpdate) (*models.User, error)
}

// AuthResult is the outcome of a successful register or login.
type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer issues session tokens. *session.Manager satisfies it.
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
