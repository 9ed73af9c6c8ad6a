package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/repositories"
)

// authService implements AuthService interface.
type authService struct {
	repo    repositories.UserRepository
	tokens  TokenIssuer
	cost    int
	dummy   []byte
	logger  Logger
	metrics MetricsCollector
}

// NewAuthService creates a new auth service. cost is the bcrypt cost; zero
// selects bcrypt.DefaultCost.
func NewAuthService(
	repo repositories.UserRepository,
	tokens TokenIssuer,
	cost int,
	logger Logger,
	metrics MetricsCollector,
) (AuthService, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New(errors.CodeConfiguration, "bcrypt cost out of range")
	}

	// Compared against when the email is unknown so both failure paths cost
	// one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to prepare password hasher")
	}

	return &authService{
		repo:    repo,
		tokens:  tokens,
		cost:    cost,
		dummy:   dummy,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Register creates a new user and issues a session for it.
func (s *authService) Register(ctx context.Context, req *models.RegisterRequest) (*AuthResult, error) {
	timer := s.metrics.StartTimer("auth_register_duration_seconds")
	defer timer.Stop()

	req.Normalize()
	if err := req.Validate(); err != nil {
		s.metrics.IncrementCounter("auth_attempts_total", "action", "register", "result", "invalid")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		s.metrics.IncrementCounter("auth_attempts_total", "action", "register", "result", "error")
		if !errors.IsAlreadyExists(err) {
			s.logger.Error("Failed to create user", "error", err)
		}
		return nil, err
	}

	s.metrics.IncrementCounter("auth_attempts_total", "action", "register", "result", "ok")
	s.logger.Info("User registered", "user_id", user.ID)

	return s.issue(user)
}

// Login verifies credentials and issues a session.
func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (*AuthResult, error) {
	timer := s.metrics.StartTimer("auth_login_duration_seconds")
	defer timer.Stop()

	if err := req.Validate(); err != nil {
		s.metrics.IncrementCounter("auth_attempts_total", "action", "login", "result", "invalid")
		return nil, err
	}

	user, err := s.repo.GetByEmail(ctx, models.NormalizeEmail(req.Email))
	if err != nil {
		if errors.IsNotFound(err) {
			_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(req.Password))
			s.metrics.IncrementCounter("auth_attempts_total", "action", "login", "result", "denied")
			return nil, errors.ErrInvalidCredentials
		}
		s.metrics.IncrementCounter("auth_attempts_total", "action", "login", "result", "error")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.IncrementCounter("auth_attempts_total", "action", "login", "result", "denied")
		s.logger.Debug("Password mismatch", "user_id", user.ID)
		return nil, errors.ErrInvalidCredentials
	}

	s.metrics.IncrementCounter("auth_attempts_total", "action", "login", "result", "ok")
	return s.issue(user)
}

func (s *authService) issue(user *models.User) (*AuthResult, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expires}, nil
}
