// Package repositories defines interfaces for data access operations.
package repositories

import (
	"context"

	"github.com/TFMV/gatehouse/pkg/models"
)

// ConnSource hands out a live database handle. *conncache.Cache satisfies it.
type ConnSource[C any] interface {
	Acquire(ctx context.Context) (C, error)
}

// UserRepository defines user storage operations.
type UserRepository interface {
	// Create stores a new user. It returns errors.ErrEmailTaken when the
	// email is already registered.
	Create(ctx context.Context, user *models.User) error
	// GetByID returns the user with the given id.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail returns the user with the given normalized email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateProfile applies an update and returns the updated user.
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error)
}
