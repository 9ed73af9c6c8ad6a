package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/models"
)

func setupTestAuthService(t *testing.T, repo *mockUserRepo) (AuthService, *mockMetricsCollector) {
	t.Helper()
	metrics := newMockMetricsCollector()
	service, err := NewAuthService(repo, &mockTokenIssuer{}, bcrypt.MinCost, &mockLogger{}, metrics)
	require.NoError(t, err)
	return service, metrics
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestNewAuthService_InvalidCost(t *testing.T) {
	_, err := NewAuthService(&mockUserRepo{}, &mockTokenIssuer{}, bcrypt.MaxCost+1, &mockLogger{}, newMockMetricsCollector())
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestAuthService_Register(t *testing.T) {
	t.Run("creates user", func(t *testing.T) {
		var stored *models.User
		repo := &mockUserRepo{
			createFunc: func(ctx context.Context, user *models.User) error {
				stored = user
				return nil
			},
		}
		service, metrics := setupTestAuthService(t, repo)

		result, err := service.Register(context.Background(), &models.RegisterRequest{
			Name:     " Ada ",
			Email:    "Ada@Example.com",
			Password: "correct horse",
		})
		require.NoError(t, err)

		require.NotNil(t, stored)
		assert.NotEmpty(t, stored.ID)
		assert.Equal(t, "Ada", stored.Name)
		assert.Equal(t, "ada@example.com", stored.Email)
		assert.NotEqual(t, "correct horse", stored.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse")))
		assert.False(t, stored.CreatedAt.IsZero())

		assert.Equal(t, stored, result.User)
		assert.Equal(t, "token-"+stored.ID, result.Token)
		assert.Equal(t, 1, metrics.counter("auth_attempts_total|action|register|result|ok"))
	})

	t.Run("invalid request", func(t *testing.T) {
		repo := &mockUserRepo{
			createFunc: func(ctx context.Context, user *models.User) error {
				t.Fatal("repository must not be called")
				return nil
			},
		}
		service, _ := setupTestAuthService(t, repo)

		_, err := service.Register(context.Background(), &models.RegisterRequest{Name: "Ada", Email: "nope", Password: "correct horse"})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequest(err))
	})

	t.Run("email taken", func(t *testing.T) {
		repo := &mockUserRepo{
			createFunc: func(ctx context.Context, user *models.User) error {
				return errors.ErrEmailTaken
			},
		}
		service, _ := setupTestAuthService(t, repo)

		_, err := service.Register(context.Background(), &models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
		assert.ErrorIs(t, err, errors.ErrEmailTaken)
	})

	t.Run("connection failure passes through", func(t *testing.T) {
		connErr := errors.New(errors.CodeConnectionFailed, "failed to establish database connection")
		repo := &mockUserRepo{
			createFunc: func(ctx context.Context, user *models.User) error {
				return connErr
			},
		}
		service, _ := setupTestAuthService(t, repo)

		_, err := service.Register(context.Background(), &models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
		assert.Same(t, connErr, err)
	})
}

func TestAuthService_Login(t *testing.T) {
	user := &models.User{
		ID:           "u-1",
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: hashPassword(t, "correct horse"),
	}

	repo := &mockUserRepo{
		getByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, errors.ErrUserNotFound
		},
	}

	tests := []struct {
		name     string
		req      models.LoginRequest
		wantErr  error
		wantCode string
	}{
		{
			name: "success with unnormalized email",
			req:  models.LoginRequest{Email: " ADA@example.com", Password: "correct horse"},
		},
		{
			name:    "wrong password",
			req:     models.LoginRequest{Email: "ada@example.com", Password: "battery staple"},
			wantErr: errors.ErrInvalidCredentials,
		},
		{
			name:    "unknown email",
			req:     models.LoginRequest{Email: "bob@example.com", Password: "correct horse"},
			wantErr: errors.ErrInvalidCredentials,
		},
		{
			name:     "missing password",
			req:      models.LoginRequest{Email: "ada@example.com"},
			wantCode: errors.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := setupTestAuthService(t, repo)

			result, err := service.Login(context.Background(), &tt.req)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCode != "":
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, "u-1", result.User.ID)
				assert.Equal(t, "token-u-1", result.Token)
				assert.True(t, result.ExpiresAt.After(time.Now()))
			}
		})
	}
}

func TestAuthService_LoginUnavailable(t *testing.T) {
	connErr := errors.New(errors.CodeConnectionFailed, "failed to establish database connection")
	repo := &mockUserRepo{
		getByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, connErr
		},
	}
	service, metrics := setupTestAuthService(t, repo)

	_, err := service.Login(context.Background(), &models.LoginRequest{Email: "ada@example.com", Password: "x"})
	assert.Same(t, connErr, err)
	assert.Equal(t, 1, metrics.counter("auth_attempts_total|action|login|result|error"))
}
