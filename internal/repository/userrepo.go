// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/blog-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to registered accounts.
type UserRepository interface {
	// Create inserts a new user; a duplicate username or email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by (sanitized) email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// EmailExists reports whether the email is already registered.
	EmailExists(ctx context.Context, email string) (bool, error)
	// UsernameExists reports whether the username is already registered.
	UsernameExists(ctx context.Context, username string) (bool, error)
	// TouchMFA records a successful MFA verification at the given time.
	TouchMFA(ctx context.Context, id uuid.UUID, at time.Time) error
}
