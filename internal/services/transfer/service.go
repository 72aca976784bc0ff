package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bankcards/internal/clock"
	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/utils/pagination"

	"go.uber.org/zap"
)

// service implements the transfer Service interface.
type service struct {
	store   repositories.Store
	clock   clock.Clock
	config  Config
	logger  *zap.Logger
	metrics MetricsCollector
}

// NewService creates a new transfer service instance.
func NewService(
	store repositories.Store,
	clk clock.Clock,
	config Config,
	logger *zap.Logger,
	metrics MetricsCollector,
) Service {
	if store == nil {
		panic("store is required")
	}
	if clk == nil {
		clk = clock.System()
	}

	// Set default configuration values if not provided
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 10
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 100
	}
	if config.MaxTTLSeconds < 0 {
		config.MaxTTLSeconds = 0
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	// Metrics is optional, create no-op collector if nil
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}

	return &service{
		store:   store,
		clock:   clk,
		config:  config,
		logger:  logger.Named("transfer"),
		metrics: metrics,
	}
}

func (s *service) Initiate(ctx context.Context, initiatorID uint, req InitiateRequest) (*Result, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := s.validate(req); err != nil {
		s.metrics.RecordError("initiate", string(apperrors.KindBadRequest))
		return nil, err
	}

	if _, err := s.store.Users().GetByID(ctx, initiatorID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load initiator: %w", err)
	}

	key := req.IdempotencyKey
	if key != "" {
		existing, err := s.store.Transfers().GetByIdempotencyKey(ctx, initiatorID, key)
		switch {
		case err == nil:
			return s.replay(existing, initiatorID, req)
		case !errors.Is(err, repositories.ErrTransferNotFound):
			return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
	}

	var created *models.Transfer
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		from, to, err := lockPair(ctx, tx.Cards(), req.FromCardID, req.ToCardID)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if err := checkOwnership(initiatorID, from, to); err != nil {
			return err
		}
		if err := checkUsable(from, now); err != nil {
			return err
		}
		if err := checkUsable(to, now); err != nil {
			return err
		}
		if err := checkFunds(from, req.Amount); err != nil {
			return err
		}

		transfer := &models.Transfer{
			InitiatorID: initiatorID,
			FromCardID:  from.ID,
			ToCardID:    to.ID,
			Amount:      req.Amount,
			Status:      models.TransferStatusPending,
			CreatedAt:   now,
		}
		if key != "" {
			transfer.IdempotencyKey = &key
		}
		if req.TTLSeconds != nil && *req.TTLSeconds > 0 {
			expiresAt := now.Add(time.Duration(*req.TTLSeconds) * time.Second)
			transfer.ExpiresAt = &expiresAt
		}

		if transfer.ExpiresAt == nil || !transfer.ExpiresAt.After(now) {
			if err := move(ctx, tx.Cards(), from, to, req.Amount); err != nil {
				return err
			}
			transfer.Complete(now)
		}

		if err := tx.Transfers().Create(ctx, transfer); err != nil {
			return err
		}

		transfer.FromCard, transfer.ToCard = from, to
		created = transfer
		return nil
	})
	if err != nil {
		if key != "" && errors.Is(err, repositories.ErrDuplicateIdempotencyKey) {
			return s.recoverDuplicate(ctx, initiatorID, req)
		}
		s.metrics.RecordError("initiate", string(apperrors.KindOf(err)))
		return nil, err
	}

	s.metrics.RecordTransfer(created.Status, created.Amount)
	s.logger.Info("transfer initiated",
		zap.Uint("transfer_id", created.ID),
		zap.Uint("initiator_id", initiatorID),
		zap.String("status", created.Status),
		zap.Int64("amount", created.Amount),
	)

	result := toResult(created)
	return &result, nil
}

// recoverDuplicate resolves a lost race on the idempotency key by returning
// the transfer that won it.
func (s *service) recoverDuplicate(ctx context.Context, initiatorID uint, req InitiateRequest) (*Result, error) {
	existing, err := s.store.Transfers().GetByIdempotencyKey(ctx, initiatorID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read transfer after idempotency conflict: %w", err)
	}
	s.logger.Info("idempotency key race resolved",
		zap.Uint("transfer_id", existing.ID),
		zap.Uint("initiator_id", initiatorID),
	)
	return s.replay(existing, initiatorID, req)
}

func (s *service) replay(existing *models.Transfer, initiatorID uint, req InitiateRequest) (*Result, error) {
	if !existing.SameRequest(initiatorID, req.FromCardID, req.ToCardID, req.Amount) {
		s.metrics.RecordError("initiate", string(apperrors.KindIdempotencyConflict))
		return nil, apperrors.ErrIdempotencyMismatch
	}
	result := toResult(existing)
	return &result, nil
}

func (s *service) validate(req InitiateRequest) error {
	if req.FromCardID == 0 {
		return apperrors.BadRequest("fromCardId is required").WithField("fromCardId", "required")
	}
	if req.ToCardID == 0 {
		return apperrors.BadRequest("toCardId is required").WithField("toCardId", "required")
	}
	if req.Amount <= 0 {
		return apperrors.ErrInvalidAmount.WithField("amount", "must be positive")
	}
	if req.TTLSeconds != nil {
		ttl := *req.TTLSeconds
		if ttl < 0 {
			return apperrors.BadRequest("ttlSeconds must not be negative").WithField("ttlSeconds", "must be >= 0")
		}
		if int64(ttl) > LimitTTLSeconds {
			return apperrors.BadRequest(fmt.Sprintf("ttlSeconds must not exceed %d", LimitTTLSeconds)).
				WithField("ttlSeconds", fmt.Sprintf("must be <= %d", LimitTTLSeconds))
		}
		if s.config.MaxTTLSeconds > 0 && ttl > s.config.MaxTTLSeconds {
			return apperrors.BadRequest(fmt.Sprintf("ttlSeconds must not exceed %d", s.config.MaxTTLSeconds)).
				WithField("ttlSeconds", fmt.Sprintf("must be <= %d", s.config.MaxTTLSeconds))
		}
	}
	if len(req.IdempotencyKey) > MaxIdempotencyKeyLength {
		return apperrors.BadRequest(fmt.Sprintf("idempotency key must be at most %d characters", MaxIdempotencyKeyLength)).
			WithField("idempotencyKey", "too long")
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, userID, transferID uint) (*Result, error) {
	var canceled *models.Transfer
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		transfer, err := tx.Transfers().LockForUpdate(ctx, transferID)
		if err != nil {
			if errors.Is(err, repositories.ErrTransferNotFound) {
				return apperrors.ErrTransferNotFound
			}
			return err
		}

		if transfer.InitiatorID != userID {
			return apperrors.ErrNotInitiator
		}
		if transfer.Status != models.TransferStatusPending {
			return apperrors.ErrTransferNotPending.WithMessage(
				fmt.Sprintf("transfer %d is %s", transfer.ID, transfer.Status))
		}
		if transfer.ExpiresAt != nil && transfer.ExpiresAt.Before(s.clock.Now()) {
			return apperrors.ErrTransferExpired
		}

		transfer.Fail(models.TransferStatusCanceled, apperrors.FailureCanceled, apperrors.FailureCanceledMessage)
		if err := tx.Transfers().Update(ctx, transfer); err != nil {
			return fmt.Errorf("failed to cancel transfer: %w", err)
		}
		canceled = transfer
		return nil
	})
	if err != nil {
		s.metrics.RecordError("cancel", string(apperrors.KindOf(err)))
		return nil, err
	}

	s.metrics.RecordTransfer(canceled.Status, canceled.Amount)
	s.logger.Info("transfer canceled", zap.Uint("transfer_id", canceled.ID), zap.Uint("user_id", userID))

	// Reload to attach both cards.
	reloaded, err := s.store.Transfers().GetByID(ctx, canceled.ID)
	if err != nil {
		s.logger.Warn("failed to reload canceled transfer", zap.Uint("transfer_id", canceled.ID), zap.Error(err))
		reloaded = canceled
	}
	result := toResult(reloaded)
	return &result, nil
}

func (s *service) ListMine(ctx context.Context, userID uint, page, size int) (pagination.Page[Result], error) {
	req := pagination.Request{Page: page, Size: size}.Normalize(s.config.DefaultPageSize, s.config.MaxPageSize)
	transfers, total, err := s.store.Transfers().ListByInitiator(ctx, userID, repositories.ListOptions{
		Offset: req.Offset(),
		Limit:  req.Size,
	})
	if err != nil {
		return pagination.Page[Result]{}, err
	}
	return pagination.NewPage(pagination.Map(transfers, func(t *models.Transfer) Result { return toResult(t) }), req, total), nil
}

func (s *service) ListAll(ctx context.Context, page, size int) (pagination.Page[Result], error) {
	req := pagination.Request{Page: page, Size: size}.Normalize(s.config.DefaultPageSize, s.config.MaxPageSize)
	transfers, total, err := s.store.Transfers().List(ctx, repositories.ListOptions{
		Offset: req.Offset(),
		Limit:  req.Size,
	})
	if err != nil {
		return pagination.Page[Result]{}, err
	}
	return pagination.NewPage(pagination.Map(transfers, func(t *models.Transfer) Result { return toResult(t) }), req, total), nil
}
