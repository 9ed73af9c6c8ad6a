// Package duckdb provides DuckDB-specific repository implementations.
package duckdb

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/TFMV/gatehouse/pkg/errors"
	duckconn "github.com/TFMV/gatehouse/pkg/infrastructure/duckdb"
	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            VARCHAR PRIMARY KEY,
	name          VARCHAR NOT NULL,
	email         VARCHAR NOT NULL UNIQUE,
	password_hash VARCHAR NOT NULL,
	bio           VARCHAR NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
)`

const selectUser = `SELECT id, name, email, password_hash, bio, created_at, updated_at FROM users`

// EnsureSchema creates the users table. It is meant to run as the dialer's
// Init hook.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, errors.CodeQueryFailed, "failed to create schema")
	}
	return nil
}

// userRepository implements repositories.UserRepository for DuckDB.
type userRepository struct {
	conns  repositories.ConnSource[*duckconn.Conn]
	logger zerolog.Logger
}

// NewUserRepository creates a new DuckDB user repository.
func NewUserRepository(conns repositories.ConnSource[*duckconn.Conn], logger zerolog.Logger) repositories.UserRepository {
	return &userRepository{
		conns:  conns,
		logger: logger,
	}
}

func (r *userRepository) db(ctx context.Context) (*sql.DB, error) {
	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn.DB(), nil
}

// Create stores a new user.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, bio, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Bio, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return errors.ErrEmailTaken
		}
		return errors.Wrap(err, errors.CodeQueryFailed, "failed to insert user")
	}

	r.logger.Debug().Str("user_id", user.ID).Msg("User created")
	return nil
}

// GetByID returns the user with the given id.
func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
}

// GetByEmail returns the user with the given email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
}

// UpdateProfile applies an update and returns the updated user.
func (r *userRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, *update.Bio)
	}
	args = append(args, id)

	result, err := db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to update user")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to get affected rows")
	}
	if affected == 0 {
		return nil, errors.ErrUserNotFound
	}

	r.logger.Debug().Str("user_id", id).Msg("Profile updated")
	return scanUser(db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to scan user")
	}
	return &user, nil
}

func isConstraintViolation(err error) bool {
	var duckErr *goduckdb.Error
	if stderrors.As(err, &duckErr) {
		return duckErr.Type == goduckdb.ErrorTypeConstraint
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate key")
}
