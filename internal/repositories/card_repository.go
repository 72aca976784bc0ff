package repositories

import (
	"bankcards/internal/models"
	"context"
	"errors"
)

var (
	ErrCardNotFound = errors.New("card not found")
	ErrDuplicatePAN = errors.New("card with this number already exists")
)

// CardRepository defines the interface for card-related database operations
type CardRepository interface {
	// Create inserts a card. A PAN hash collision yields ErrDuplicatePAN.
	Create(ctx context.Context, card *models.Card) error
	GetByID(ctx context.Context, id uint) (*models.Card, error)

	// LockForUpdate reads the card with SELECT ... FOR UPDATE. Only meaningful
	// inside ExecuteInTransaction; callers locking two cards must go through
	// ascending id order.
	LockForUpdate(ctx context.Context, id uint) (*models.Card, error)

	// Update persists status and balance, guarded by the card's version.
	// A concurrent modification yields ErrStaleVersion.
	Update(ctx context.Context, card *models.Card) error
	Delete(ctx context.Context, id uint) error

	ExistsByPanHash(ctx context.Context, panHash string) (bool, error)
	CountByUser(ctx context.Context, userID uint) (int64, error)

	// ListByUser and List page cards by id descending. An empty status
	// matches any status.
	ListByUser(ctx context.Context, userID uint, status string, opts ListOptions) ([]*models.Card, int64, error)
	List(ctx context.Context, status string, opts ListOptions) ([]*models.Card, int64, error)
}
