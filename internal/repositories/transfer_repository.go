package repositories

import (
	"bankcards/internal/models"
	"context"
	"errors"
	"time"
)

var (
	ErrTransferNotFound        = errors.New("transfer not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used by this initiator")
)

// TransferRepository defines the interface for transfer persistence.
// Transfers are never deleted.
type TransferRepository interface {
	// Create inserts a transfer. A (initiator, idempotency key) collision
	// yields ErrDuplicateIdempotencyKey.
	Create(ctx context.Context, transfer *models.Transfer) error
	GetByID(ctx context.Context, id uint) (*models.Transfer, error)
	LockForUpdate(ctx context.Context, id uint) (*models.Transfer, error)

	// Update persists a PENDING transfer's transition. Rows that are no
	// longer PENDING or whose version moved yield ErrStaleVersion.
	Update(ctx context.Context, transfer *models.Transfer) error

	GetByIdempotencyKey(ctx context.Context, initiatorID uint, key string) (*models.Transfer, error)

	// FindDuePending returns up to limit ids of PENDING transfers with
	// expires_at <= cutoff, ascending.
	FindDuePending(ctx context.Context, cutoff time.Time, limit int) ([]uint, error)

	// ListByInitiator and List page transfers by id descending with both
	// cards preloaded.
	ListByInitiator(ctx context.Context, initiatorID uint, opts ListOptions) ([]*models.Transfer, int64, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Transfer, int64, error)

	ExistsByCard(ctx context.Context, cardID uint) (bool, error)
}
