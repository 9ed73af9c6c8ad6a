package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/TFMV/gatehouse/pkg/models"
)

// mockUserRepo implements repositories.UserRepository
type mockUserRepo struct {
	createFunc        func(ctx context.Context, user *models.User) error
	getByIDFunc       func(ctx context.Context, id string) (*models.User, error)
	getByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	updateProfileFunc func(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	return m.createFunc(ctx, user)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.getByEmailFunc(ctx, email)
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	return m.updateProfileFunc(ctx, id, update)
}

// mockTokenIssuer implements TokenIssuer
type mockTokenIssuer struct {
	issueFunc func(userID string) (string, time.Time, error)
}

func (m *mockTokenIssuer) Issue(userID string) (string, time.Time, error) {
	if m.issueFunc != nil {
		return m.issueFunc(userID)
	}
	return "token-" + userID, time.Now().Add(time.Hour), nil
}

// mockLogger implements Logger
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockMetricsCollector implements MetricsCollector and records counters
// keyed by name and labels joined with "|".
type mockMetricsCollector struct {
	mu       sync.Mutex
	counters map[string]int
	gauges   map[string]float64
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		counters: make(map[string]int),
		gauges:   make(map[string]float64),
	}
}

func (m *mockMetricsCollector) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[strings.Join(append([]string{name}, labels...), "|")]++
}

func (m *mockMetricsCollector) RecordHistogram(name string, value float64, labels ...string) {}

func (m *mockMetricsCollector) RecordGauge(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

func (m *mockMetricsCollector) StartTimer(name string) Timer {
	return &mockTimer{}
}

func (m *mockMetricsCollector) counter(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

// mockTimer implements Timer
type mockTimer struct{}

func (m *mockTimer) Stop() time.Duration {
	return 0
}
