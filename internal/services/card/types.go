package card

import (
	"context"
	"time"

	"bankcards/internal/models"
	"bankcards/internal/utils/pagination"
)

// Service defines card issuance and administration.
type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*Result, error)
	Get(ctx context.Context, cardID uint) (*Result, error)
	ListMine(ctx context.Context, userID uint, status string, page, size int) (pagination.Page[Result], error)
	ListAll(ctx context.Context, status string, page, size int) (pagination.Page[Result], error)
	Block(ctx context.Context, cardID uint) (*Result, error)
	Activate(ctx context.Context, cardID uint) (*Result, error)
	Delete(ctx context.Context, cardID uint) error
}

// PANProtector encrypts card numbers and derives their lookup hash.
type PANProtector interface {
	Encrypt(pan string) (string, error)
	Hash(pan string) string
}

// IssueRequest describes a new card for UserID.
type IssueRequest struct {
	UserID         uint
	PAN            string
	Expiry         string // YYYY-MM
	InitialBalance int64
}

// Config holds the paging limits of card listings.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Result is the externally visible view of a card. The full number never
// leaves the service.
type Result struct {
	ID           uint      `json:"id"`
	MaskedNumber string    `json:"maskedNumber"`
	Last4        string    `json:"last4"`
	Expiry       string    `json:"expiry"`
	Status       string    `json:"status"`
	Balance      int64     `json:"balance"`
	OwnerID      uint      `json:"ownerId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toResult(c *models.Card) Result {
	return Result{
		ID:           c.ID,
		MaskedNumber: c.MaskedNumber(),
		Last4:        c.PanLast4,
		Expiry:       c.Expiry,
		Status:       c.Status,
		Balance:      c.Balance,
		OwnerID:      c.UserID,
		CreatedAt:    c.CreatedAt,
	}
}
