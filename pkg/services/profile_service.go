package services

import (
	"context"

	"github.com/TFMV/gatehouse/pkg/cache"
	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/repositories"
)

// profileService implements ProfileService interface.
type profileService struct {
	repo    repositories.UserRepository
	cache   *cache.LRU[models.User] // nil when caching is disabled
	logger  Logger
	metrics MetricsCollector
}

// NewProfileService creates a new profile service. A cacheCfg without
// entries disables the read cache.
func NewProfileService(
	repo repositories.UserRepository,
	cacheCfg cache.Config,
	logger Logger,
	metrics MetricsCollector,
) (ProfileService, error) {
	s := &profileService{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}

	if cacheCfg.Enabled() {
		profiles, err := cache.New[models.User](cacheCfg)
		if err != nil {
			return nil, err
		}
		s.cache = profiles
	}

	return s, nil
}

// Get returns the user with the given id.
func (s *profileService) Get(ctx context.Context, userID string) (*models.User, error) {
	if s.cache != nil {
		if user, ok := s.cache.Get(userID); ok {
			s.metrics.IncrementCounter("profile_cache_lookups_total", "result", "hit")
			return &user, nil
		}
		s.metrics.IncrementCounter("profile_cache_lookups_total", "result", "miss")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.store(user)
	return user, nil
}

// Update validates and applies a profile update.
func (s *profileService) Update(ctx context.Context, userID string, update *models.ProfileUpdate) (*models.User, error) {
	update.Normalize()
	if err := update.Validate(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Delete(userID)
	}

	user, err := s.repo.UpdateProfile(ctx, userID, *update)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Profile updated", "user_id", userID)
	s.store(user)
	return user, nil
}

func (s *profileService) store(user *models.User) {
	if s.cache == nil {
		return
	}
	s.cache.Put(user.ID, *user)
	s.metrics.RecordGauge("profile_cache_entries", float64(s.cache.Len()))
}
