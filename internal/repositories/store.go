package repositories

import (
	"context"
	"errors"
	"fmt"

	"bankcards/internal/repositories/cache"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrStaleVersion      = errors.New("row was modified concurrently")
	ErrDatabaseOperation = errors.New("database operation failed")
)

const pgUniqueViolation = "23505"

// Store groups the repositories that must share a transaction.
type Store interface {
	Cards() CardRepository
	Transfers() TransferRepository
	Users() UserRepository

	// ExecuteInTransaction runs fn against a Store bound to a single database
	// transaction. Row locks taken through the bound repositories are held
	// until fn returns; a non-nil error rolls everything back.
	ExecuteInTransaction(ctx context.Context, fn func(Store) error) error
}

type store struct {
	db        *gorm.DB
	cache     *cache.CacheService
	cards     CardRepository
	transfers TransferRepository
	users     UserRepository
}

// NewStore builds the gorm-backed Store. userCache may be nil.
func NewStore(db *gorm.DB, userCache *cache.CacheService) Store {
	return &store{
		db:        db,
		cache:     userCache,
		cards:     NewCardRepository(db),
		transfers: NewTransferRepository(db),
		users:     NewUserRepository(db, userCache),
	}
}

func (s *store) Cards() CardRepository         { return s.cards }
func (s *store) Transfers() TransferRepository { return s.transfers }
func (s *store) Users() UserRepository         { return s.users }

func (s *store) ExecuteInTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := NewStore(tx, s.cache)
		return fn(txStore)
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func wrap(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, err)
}

// ListOptions describes a page request in offset/limit form.
type ListOptions struct {
	Offset int
	Limit  int
}
