// Package handlers contains the HTTP handlers of the gatehouse server.
package handlers

import (
	"context"
	"net/http"
	"time"
)

// CookieIssuer builds auth cookies. *session.Manager satisfies it.
type CookieIssuer interface {
	Cookie(token string, expires time.Time) *http.Cookie
	ClearCookie() *http.Cookie
}

// HealthCheck reports whether the database can be reached.
type HealthCheck func(ctx context.Context) error

// Logger defines the logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines the metrics interface.
type MetricsCollector interface {
	IncrementCounter(name string, tags ...string)
	RecordHistogram(name string, value float64, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop()
}
