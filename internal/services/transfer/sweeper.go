package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bankcards/internal/clock"
	apperrors "bankcards/internal/errors"
	"bankcards/internal/lock"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	keys "bankcards/internal/utils/cache"

	"go.uber.org/zap"
)

// Mode selects what the sweeper does with a due PENDING transfer.
type Mode string

const (
	ModeExpire  Mode = "EXPIRE"
	ModeExecute Mode = "EXECUTE"
)

// ParseMode reads a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeExpire:
		return ModeExpire, nil
	case ModeExecute:
		return ModeExecute, nil
	default:
		return "", fmt.Errorf("unknown sweeper mode %q", s)
	}
}

var sweeperLockKey = keys.LockKey("transfers-sweeper")

// SweeperConfig holds the sweeper schedule.
type SweeperConfig struct {
	FixedDelay time.Duration
	BatchSize  int
	Mode       Mode
}

// Sweeper resolves PENDING transfers whose expiry has been reached. Ticks
// run one at a time; the delay is measured from the end of one tick to the
// start of the next.
type Sweeper struct {
	store   repositories.Store
	clock   clock.Clock
	config  SweeperConfig
	locker  lock.Locker
	logger  *zap.Logger
	metrics MetricsCollector

	mu      sync.Mutex
	tickMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSweeper builds a sweeper. locker is optional; when set, a tick only
// runs on the instance that wins the lock.
func NewSweeper(
	store repositories.Store,
	clk clock.Clock,
	config SweeperConfig,
	locker lock.Locker,
	logger *zap.Logger,
	metrics MetricsCollector,
) *Sweeper {
	if store == nil {
		panic("store is required")
	}
	if clk == nil {
		clk = clock.System()
	}
	if config.FixedDelay <= 0 {
		config.FixedDelay = 10 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Mode == "" {
		config.Mode = ModeExpire
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	return &Sweeper{
		store:   store,
		clock:   clk,
		config:  config,
		locker:  locker,
		logger:  logger.Named("sweeper"),
		metrics: metrics,
	}
}

// Start launches the background loop. Calling Start on a running sweeper
// is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("sweeper started",
		zap.String("mode", string(s.config.Mode)),
		zap.Duration("fixed_delay", s.config.FixedDelay),
		zap.Int("batch_size", s.config.BatchSize),
	)

	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.config.FixedDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.tick(ctx)
		timer.Reset(s.config.FixedDelay)
	}
}

// tick runs one guarded pass. It never panics or returns an error so the
// schedule keeps going.
func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweeper tick panicked", zap.Any("panic", r))
		}
	}()

	if s.locker != nil {
		h, ok, err := s.locker.TryLock(ctx, sweeperLockKey)
		switch {
		case err != nil:
			// Per-row locks still serialize work on each transfer.
			s.logger.Warn("sweeper lock unavailable, sweeping without it", zap.Error(err))
		case !ok:
			s.logger.Debug("sweeper tick skipped, another instance holds the lock")
			return
		default:
			defer func() {
				if err := h.Unlock(context.Background()); err != nil {
					s.logger.Warn("failed to release sweeper lock", zap.Error(err))
				}
			}()
		}
	}

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweeper tick failed", zap.Error(err))
	}
}

// RunOnce processes one batch of due transfers and returns how many reached
// a terminal state. Per-transfer failures are logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	ids, err := s.store.Transfers().FindDuePending(ctx, s.clock.Now(), s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find due transfers: %w", err)
	}

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		done, err := s.processOne(ctx, id)
		if err != nil {
			s.logger.Warn("failed to sweep transfer", zap.Uint("transfer_id", id), zap.Error(err))
			continue
		}
		if done {
			processed++
		}
	}

	s.metrics.RecordSweep(string(s.config.Mode), processed)
	if len(ids) > 0 {
		s.logger.Info("sweeper tick finished",
			zap.Int("due", len(ids)),
			zap.Int("processed", processed),
			zap.String("mode", string(s.config.Mode)),
		)
	}
	return processed, nil
}

// processOne resolves a single transfer in its own transaction. It reports
// false when the transfer no longer needs work.
func (s *Sweeper) processOne(ctx context.Context, id uint) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sweeping transfer %d: %v", id, r)
		}
	}()

	var settled *models.Transfer
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		transfer, err := tx.Transfers().LockForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTransferNotFound) {
				return nil
			}
			return err
		}

		now := s.clock.Now()
		if transfer.Status != models.TransferStatusPending || !transfer.IsDue(now) {
			return nil
		}

		switch s.config.Mode {
		case ModeExecute:
			if err := s.execute(ctx, tx, transfer, now); err != nil {
				return err
			}
		default:
			transfer.Fail(models.TransferStatusExpired, apperrors.FailureExpired, apperrors.FailureExpiredMessage)
		}

		if err := tx.Transfers().Update(ctx, transfer); err != nil {
			return fmt.Errorf("failed to update transfer: %w", err)
		}
		settled = transfer
		return nil
	})
	if err != nil {
		return false, err
	}
	if settled == nil {
		return false, nil
	}
	s.metrics.RecordTransfer(settled.Status, settled.Amount)
	return true, nil
}

// execute settles a due transfer: FAILED on card state or funds, otherwise
// the balances move and the transfer completes.
func (s *Sweeper) execute(ctx context.Context, tx repositories.Store, transfer *models.Transfer, now time.Time) error {
	from, to, err := lockPair(ctx, tx.Cards(), transfer.FromCardID, transfer.ToCardID)
	if err != nil {
		return err
	}

	if checkUsable(from, now) != nil || checkUsable(to, now) != nil {
		transfer.Fail(models.TransferStatusFailed, apperrors.FailureCardState, apperrors.FailureCardStateMessage)
		return nil
	}
	if checkFunds(from, transfer.Amount) != nil {
		transfer.Fail(models.TransferStatusFailed, apperrors.FailureInsufficientFunds, apperrors.FailureInsufficientFundsMessage)
		return nil
	}

	if err := move(ctx, tx.Cards(), from, to, transfer.Amount); err != nil {
		if errors.Is(err, apperrors.ErrBalanceOverflow) {
			transfer.Fail(models.TransferStatusFailed, apperrors.FailureCardState, apperrors.FailureCardStateMessage)
			return nil
		}
		return err
	}
	transfer.Complete(now)
	return nil
}
