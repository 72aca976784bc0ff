package transfer

import (
	"math"
	"time"

	"bankcards/internal/models"
)

// MaxIdempotencyKeyLength bounds client supplied idempotency keys.
const MaxIdempotencyKeyLength = 64

// LimitTTLSeconds is the largest TTL a time.Duration can hold. It applies
// even when Config.MaxTTLSeconds is zero.
const LimitTTLSeconds = math.MaxInt64 / int64(time.Second)

// InitiateRequest describes a transfer between two of the caller's cards.
type InitiateRequest struct {
	FromCardID     uint
	ToCardID       uint
	Amount         int64
	TTLSeconds     *int
	IdempotencyKey string
}

// Config holds the engine's limits.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	MaxTTLSeconds   int // 0 = unlimited
}

// Result is the externally visible view of a transfer.
type Result struct {
	ID             uint       `json:"id"`
	FromCardID     uint       `json:"fromCardId"`
	ToCardID       uint       `json:"toCardId"`
	FromLast4      string     `json:"fromLast4"`
	ToLast4        string     `json:"toLast4"`
	Amount         int64      `json:"amount"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ExecutedAt     *time.Time `json:"executedAt,omitempty"`
	FailureCode    string     `json:"failureCode,omitempty"`
	FailureMessage string     `json:"failureMessage,omitempty"`
}

func toResult(t *models.Transfer) Result {
	r := Result{
		ID:             t.ID,
		FromCardID:     t.FromCardID,
		ToCardID:       t.ToCardID,
		Amount:         t.Amount,
		Status:         t.Status,
		CreatedAt:      t.CreatedAt,
		ExpiresAt:      t.ExpiresAt,
		ExecutedAt:     t.ExecutedAt,
		FailureCode:    t.FailureCode,
		FailureMessage: t.FailureMessage,
	}
	if t.FromCard != nil {
		r.FromLast4 = t.FromCard.PanLast4
	}
	if t.ToCard != nil {
		r.ToLast4 = t.ToCard.PanLast4
	}
	return r
}
