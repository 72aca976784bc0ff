package transfer

import (
	"context"
	"errors"
	"fmt"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
)

// lockPair locks both cards FOR UPDATE, lower id first, and returns them in
// (from, to) order. Every path that reads-then-writes two cards goes through
// here so that all transactions agree on one lock order.
func lockPair(ctx context.Context, cards repositories.CardRepository, fromID, toID uint) (*models.Card, *models.Card, error) {
	if fromID == toID {
		if _, err := lockCard(ctx, cards, fromID); err != nil {
			return nil, nil, err
		}
		return nil, nil, apperrors.BadRequest("source and destination cards must differ")
	}

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	a, err := lockCard(ctx, cards, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := lockCard(ctx, cards, second)
	if err != nil {
		return nil, nil, err
	}

	if a.ID == fromID {
		return a, b, nil
	}
	return b, a, nil
}

func lockCard(ctx context.Context, cards repositories.CardRepository, id uint) (*models.Card, error) {
	card, err := cards.LockForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrCardNotFound) {
			return nil, apperrors.ErrCardNotFound.WithMessage(fmt.Sprintf("card %d not found", id))
		}
		return nil, err
	}
	return card, nil
}
