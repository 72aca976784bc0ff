package card

import (
	"context"
	"errors"
	"fmt"

	"bankcards/internal/clock"
	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/utils/pagination"

	"go.uber.org/zap"
)

type service struct {
	store  repositories.Store
	pan    PANProtector
	clock  clock.Clock
	config Config
	logger *zap.Logger
}

// NewService creates a new card service instance.
func NewService(store repositories.Store, pan PANProtector, clk clock.Clock, config Config, logger *zap.Logger) Service {
	if store == nil || pan == nil {
		panic("store and pan protector are required")
	}
	if clk == nil {
		clk = clock.System()
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 10
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		store:  store,
		pan:    pan,
		clock:  clk,
		config: config,
		logger: logger.Named("card"),
	}
}

func (s *service) Issue(ctx context.Context, req IssueRequest) (*Result, error) {
	pan := normalizePAN(req.PAN)
	if err := s.validateIssue(pan, req); err != nil {
		return nil, err
	}

	if _, err := s.store.Users().GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load card owner: %w", err)
	}

	hash := s.pan.Hash(pan)
	exists, err := s.store.Cards().ExistsByPanHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check card number: %w", err)
	}
	if exists {
		return nil, errDuplicatePAN
	}

	ciphertext, err := s.pan.Encrypt(pan)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt card number: %w", err)
	}

	card := &models.Card{
		UserID:        req.UserID,
		PanCiphertext: ciphertext,
		PanHash:       hash,
		PanLast4:      pan[len(pan)-4:],
		Expiry:        req.Expiry,
		Status:        models.CardStatusActive,
		Balance:       req.InitialBalance,
	}
	if err := s.store.Cards().Create(ctx, card); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePAN) {
			return nil, errDuplicatePAN
		}
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	s.logger.Info("card issued",
		zap.Uint("card_id", card.ID),
		zap.Uint("user_id", card.UserID),
		zap.String("last4", card.PanLast4),
	)
	result := toResult(card)
	return &result, nil
}

var errDuplicatePAN = apperrors.Conflict("card with this number already exists")

func (s *service) validateIssue(pan string, req IssueRequest) error {
	if req.UserID == 0 {
		return apperrors.BadRequest("userId is required").WithField("userId", "required")
	}
	if len(pan) != PANLength || !isDigits(pan) {
		return apperrors.BadRequest(fmt.Sprintf("card number must be exactly %d digits", PANLength)).
			WithField("pan", "invalid format")
	}
	if !luhnValid(pan) {
		return apperrors.BadRequest("card number failed the Luhn check").WithField("pan", "invalid checksum")
	}

	end, err := models.ExpiryEnd(req.Expiry)
	if err != nil || len(req.Expiry) != len(models.ExpiryLayout) {
		return apperrors.BadRequest("expiry must be formatted as YYYY-MM").WithField("expiry", "invalid format")
	}
	if !s.clock.Now().Before(end) {
		return apperrors.BadRequest("expiry must not be in the past").WithField("expiry", "in the past")
	}

	if req.InitialBalance < 0 {
		return apperrors.BadRequest("initial balance must not be negative").WithField("initialBalance", "must be >= 0")
	}
	return nil
}

func (s *service) Get(ctx context.Context, cardID uint) (*Result, error) {
	card, err := s.store.Cards().GetByID(ctx, cardID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	result := toResult(card)
	return &result, nil
}

func (s *service) ListMine(ctx context.Context, userID uint, status string, page, size int) (pagination.Page[Result], error) {
	if err := validateStatus(status); err != nil {
		return pagination.Page[Result]{}, err
	}
	req := pagination.Request{Page: page, Size: size}.Normalize(s.config.DefaultPageSize, s.config.MaxPageSize)
	cards, total, err := s.store.Cards().ListByUser(ctx, userID, status, repositories.ListOptions{
		Offset: req.Offset(),
		Limit:  req.Size,
	})
	if err != nil {
		return pagination.Page[Result]{}, err
	}
	return pagination.NewPage(pagination.Map(cards, func(c *models.Card) Result { return toResult(c) }), req, total), nil
}

func (s *service) ListAll(ctx context.Context, status string, page, size int) (pagination.Page[Result], error) {
	if err := validateStatus(status); err != nil {
		return pagination.Page[Result]{}, err
	}
	req := pagination.Request{Page: page, Size: size}.Normalize(s.config.DefaultPageSize, s.config.MaxPageSize)
	cards, total, err := s.store.Cards().List(ctx, status, repositories.ListOptions{
		Offset: req.Offset(),
		Limit:  req.Size,
	})
	if err != nil {
		return pagination.Page[Result]{}, err
	}
	return pagination.NewPage(pagination.Map(cards, func(c *models.Card) Result { return toResult(c) }), req, total), nil
}

func validateStatus(status string) error {
	switch status {
	case "", models.CardStatusActive, models.CardStatusBlocked:
		return nil
	default:
		return apperrors.BadRequest(fmt.Sprintf("unknown card status %q", status)).WithField("status", "must be ACTIVE or BLOCKED")
	}
}

func (s *service) Block(ctx context.Context, cardID uint) (*Result, error) {
	return s.setStatus(ctx, cardID, models.CardStatusBlocked)
}

func (s *service) Activate(ctx context.Context, cardID uint) (*Result, error) {
	return s.setStatus(ctx, cardID, models.CardStatusActive)
}

func (s *service) setStatus(ctx context.Context, cardID uint, status string) (*Result, error) {
	var updated *models.Card
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		card, err := tx.Cards().LockForUpdate(ctx, cardID)
		if err != nil {
			return mapNotFound(err)
		}
		if card.Status == status {
			return apperrors.InvalidState(fmt.Sprintf("card %d is already %s", card.ID, status))
		}
		card.Status = status
		if err := tx.Cards().Update(ctx, card); err != nil {
			return fmt.Errorf("failed to update card status: %w", err)
		}
		updated = card
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("card status changed", zap.Uint("card_id", updated.ID), zap.String("status", status))
	result := toResult(updated)
	return &result, nil
}

func (s *service) Delete(ctx context.Context, cardID uint) error {
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if _, err := tx.Cards().LockForUpdate(ctx, cardID); err != nil {
			return mapNotFound(err)
		}
		used, err := tx.Transfers().ExistsByCard(ctx, cardID)
		if err != nil {
			return fmt.Errorf("failed to check card transfers: %w", err)
		}
		if used {
			return apperrors.InvalidState(fmt.Sprintf("card %d is referenced by transfers and cannot be deleted", cardID))
		}
		if err := tx.Cards().Delete(ctx, cardID); err != nil {
			return mapNotFound(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("card deleted", zap.Uint("card_id", cardID))
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repositories.ErrCardNotFound) {
		return apperrors.ErrCardNotFound
	}
	return err
}

