package models

import (
	"time"
)

// Transfer statuses
const (
	TransferStatusPending   = "PENDING"
	TransferStatusCompleted = "COMPLETED"
	TransferStatusFailed    = "FAILED"
	TransferStatusExpired   = "EXPIRED"
	TransferStatusCanceled  = "CANCELED"
)

// Transfer moves Amount minor units from FromCard to ToCard. Only PENDING
// transfers are ever mutated.
type Transfer struct {
	ID             uint       `gorm:"primarykey"`
	InitiatorID    uint       `gorm:"not null;index;uniqueIndex:idx_transfers_initiator_idem_key,priority:1"`
	FromCardID     uint       `gorm:"not null;index"`
	FromCard       *Card      `gorm:"foreignKey:FromCardID;constraint:OnDelete:RESTRICT"`
	ToCardID       uint       `gorm:"not null;index"`
	ToCard         *Card      `gorm:"foreignKey:ToCardID;constraint:OnDelete:RESTRICT"`
	Amount         int64      `gorm:"not null;check:chk_transfers_amount_positive,amount > 0"`
	Status         string     `gorm:"size:16;not null;index:idx_transfers_status_expires,priority:1"`
	CreatedAt      time.Time  `gorm:"not null;autoCreateTime:false"`
	ExpiresAt      *time.Time `gorm:"index:idx_transfers_status_expires,priority:2"`
	ExecutedAt     *time.Time
	FailureCode    string  `gorm:"size:32"`
	FailureMessage string  `gorm:"size:255"`
	IdempotencyKey *string `gorm:"size:64;uniqueIndex:idx_transfers_initiator_idem_key,priority:2"`
	Version        int64   `gorm:"not null;default:0"`
}

// IsTerminal reports whether the transfer reached a final status.
func (t *Transfer) IsTerminal() bool {
	return t.Status != TransferStatusPending
}

// IsDue reports whether a pending transfer's expiry has been reached.
func (t *Transfer) IsDue(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Complete marks the transfer executed at now.
func (t *Transfer) Complete(now time.Time) {
	t.Status = TransferStatusCompleted
	t.ExecutedAt = &now
	t.FailureCode = ""
	t.FailureMessage = ""
}

// Fail moves the transfer to status with the given failure details.
func (t *Transfer) Fail(status, code, message string) {
	t.Status = status
	t.FailureCode = code
	t.FailureMessage = message
}

// SameRequest reports whether the transfer was created from the same
// parameters as a replayed request.
func (t *Transfer) SameRequest(initiatorID, fromCardID, toCardID uint, amount int64) bool {
	return t.InitiatorID == initiatorID &&
		t.FromCardID == fromCardID &&
		t.ToCardID == toCardID &&
		t.Amount == amount
}
