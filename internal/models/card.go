package models

import (
	"fmt"
	"time"
)

// Card statuses
const (
	CardStatusActive  = "ACTIVE"
	CardStatusBlocked = "BLOCKED"
)

// ExpiryLayout is the year-month format of Card.Expiry.
const ExpiryLayout = "2006-01"

// Card is a stored-value bank card. Balance is kept in minor units and never
// goes negative.
type Card struct {
	ID            uint   `gorm:"primarykey"`
	UserID        uint   `gorm:"not null;index"`
	PanCiphertext string `gorm:"not null"`
	PanHash       string `gorm:"size:64;not null;uniqueIndex"`
	PanLast4      string `gorm:"size:4;not null"`
	Expiry        string `gorm:"size:7;not null"` // YYYY-MM
	Status        string `gorm:"size:16;not null;default:'ACTIVE';index"`
	Balance       int64  `gorm:"not null;default:0;check:chk_cards_balance_non_negative,balance >= 0"`
	Version       int64  `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the card status allows transfers.
func (c *Card) IsActive() bool {
	return c.Status == CardStatusActive
}

// ExpiresBefore reports whether the card's expiry month ends before now.
// A card is usable through the last instant of its expiry month.
func (c *Card) ExpiresBefore(now time.Time) bool {
	end, err := ExpiryEnd(c.Expiry)
	if err != nil {
		return true
	}
	return !now.Before(end)
}

// MaskedNumber renders the PAN with only the last four digits visible.
func (c *Card) MaskedNumber() string {
	return fmt.Sprintf("**** **** **** %s", c.PanLast4)
}

// ExpiryEnd returns the first instant after the given YYYY-MM month, in UTC.
func ExpiryEnd(expiry string) (time.Time, error) {
	t, err := time.ParseInLocation(ExpiryLayout, expiry, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry %q: %w", expiry, err)
	}
	return t.AddDate(0, 1, 0), nil
}
