package repositories

import (
	"bankcards/internal/models"
	"context"
	"errors"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	// Create creates a new user in the database
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by their ID, going through the cache when one
	// is configured
	GetByID(ctx context.Context, id uint) (*models.User, error)

	// GetByUsername retrieves a user by their username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Update updates an existing user's roles and enabled flag
	Update(ctx context.Context, user *models.User) error

	// Delete removes a user from the database
	Delete(ctx context.Context, id uint) error

	// List retrieves users with pagination, optionally filtered by a
	// username substring
	List(ctx context.Context, search string, opts ListOptions) ([]*models.User, int64, error)
}
