package transfer

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
)

func checkOwnership(initiatorID uint, from, to *models.Card) error {
	if from.UserID != to.UserID {
		return apperrors.ErrCardNotOwned.WithMessage("cards belong to different users")
	}
	if from.UserID != initiatorID {
		return apperrors.ErrCardNotOwned
	}
	return nil
}

// checkUsable fails with InvalidState for a blocked card and Expired for a
// card past its expiry month.
func checkUsable(card *models.Card, now time.Time) error {
	if !card.IsActive() {
		return apperrors.ErrCardInactive.WithMessage(fmt.Sprintf("card %d is %s", card.ID, card.Status))
	}
	if card.ExpiresBefore(now) {
		return apperrors.ErrCardExpired.WithMessage(fmt.Sprintf("card %d expired in %s", card.ID, card.Expiry))
	}
	return nil
}

func checkFunds(from *models.Card, amount int64) error {
	if from.Balance < amount {
		return apperrors.ErrInsufficientFunds
	}
	return nil
}

// move debits from and credits to by amount and persists both cards. Both
// must already be locked by the caller's transaction.
func move(ctx context.Context, cards repositories.CardRepository, from, to *models.Card, amount int64) error {
	if err := checkFunds(from, amount); err != nil {
		return err
	}
	if to.Balance > math.MaxInt64-amount {
		return apperrors.ErrBalanceOverflow
	}

	from.Balance -= amount
	to.Balance += amount

	if err := cards.Update(ctx, from); err != nil {
		return fmt.Errorf("failed to debit card %d: %w", from.ID, err)
	}
	if err := cards.Update(ctx, to); err != nil {
		return fmt.Errorf("failed to credit card %d: %w", to.ID, err)
	}
	return nil
}
