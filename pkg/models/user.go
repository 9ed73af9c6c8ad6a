// Package models provides data structures used throughout the gatehouse server.
package models

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TFMV/gatehouse/pkg/errors"
)

// Field limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt ignores anything longer
	MaxNameLength     = 100
	MaxBioLength      = 500
)

// User is the stored user document.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Bio          string    `json:"bio" bson:"bio"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Name:      u.Name,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
	}
}

// RegisterRequest represents a sign-up request.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims the request and lower-cases the email.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

// Validate validates the request.
func (r *RegisterRequest) Validate() error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	n := len(r.Password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return errors.New(errors.CodeInvalidRequest, "password must be between 8 and 72 bytes").
			WithDetail("field", "password")
	}
	return nil
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates the request.
func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return errors.New(errors.CodeInvalidRequest, "email and password are required")
	}
	return nil
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name *string `json:"name,omitempty"`
	Bio  *string `json:"bio,omitempty"`
}

// Normalize trims the update.
func (p *ProfileUpdate) Normalize() {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	if p.Bio != nil {
		bio := strings.TrimSpace(*p.Bio)
		p.Bio = &bio
	}
}

// Validate validates the update.
func (p *ProfileUpdate) Validate() error {
	if p.Name == nil && p.Bio == nil {
		return errors.New(errors.CodeInvalidRequest, "nothing to update")
	}
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Bio != nil && utf8.RuneCountInString(*p.Bio) > MaxBioLength {
		return errors.New(errors.CodeInvalidRequest, "bio is too long").WithDetail("field", "bio")
	}
	return nil
}

// Apply applies the update to u.
func (p *ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxNameLength {
		return errors.New(errors.CodeInvalidRequest, "name must be between 1 and 100 characters").
			WithDetail("field", "name")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New(errors.CodeInvalidRequest, "invalid email address").WithDetail("field", "email")
	}
	return nil
}
