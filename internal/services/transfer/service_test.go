package transfer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTransferService_InitiateImmediate(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 100)

	metrics := new(MockMetrics)
	metrics.On("RecordTransfer", models.TransferStatusCompleted, int64(300)).Once()

	res, err := f.service(metrics).Initiate(context.Background(), u.ID, InitiateRequest{
		FromCardID: a.ID,
		ToCardID:   b.ID,
		Amount:     300,
	})
	require.NoError(t, err)

	assert.Equal(t, models.TransferStatusCompleted, res.Status)
	assert.Equal(t, int64(300), res.Amount)
	assert.Equal(t, a.PanLast4, res.FromLast4)
	assert.Equal(t, b.PanLast4, res.ToLast4)
	assert.Nil(t, res.ExpiresAt)
	require.NotNil(t, res.ExecutedAt)
	assert.True(t, res.ExecutedAt.Equal(baseTime))
	assert.True(t, res.CreatedAt.Equal(baseTime))

	assert.Equal(t, int64(700), f.balance(t, a.ID))
	assert.Equal(t, int64(400), f.balance(t, b.ID))
	metrics.AssertExpectations(t)
}

func TestTransferService_InitiateZeroTTLExecutesNow(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	a := f.addCard(t, u.ID, 50)
	b := f.addCard(t, u.ID, 0)

	res, err := f.service(nil).Initiate(context.Background(), u.ID, InitiateRequest{
		FromCardID: a.ID, ToCardID: b.ID, Amount: 50, TTLSeconds: ttl(0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, res.Status)
	assert.Equal(t, int64(0), f.balance(t, a.ID))
	assert.Equal(t, int64(50), f.balance(t, b.ID))
}

func TestTransferService_ScheduledThenExecutedBySweeper(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 100)

	res, err := f.service(nil).Initiate(context.Background(), u.ID, InitiateRequest{
		FromCardID: a.ID, ToCardID: b.ID, Amount: 300, TTLSeconds: ttl(3600),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPending, res.Status)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(baseTime.Add(time.Hour)))
	assert.Nil(t, res.ExecutedAt)
	assert.Equal(t, int64(1000), f.balance(t, a.ID))
	assert.Equal(t, int64(100), f.balance(t, b.ID))

	f.clock.Add(3601 * time.Second)
	n, err := f.sweeper(ModeExecute).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.transfer(t, res.ID)
	assert.Equal(t, models.TransferStatusCompleted, got.Status)
	require.NotNil(t, got.ExecutedAt)
	assert.True(t, got.ExecutedAt.Equal(baseTime.Add(3601*time.Second)))
	assert.Equal(t, int64(700), f.balance(t, a.ID))
	assert.Equal(t, int64(400), f.balance(t, b.ID))
}

func TestTransferService_InsufficientFunds(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	a := f.addCard(t, u.ID, 9)
	b := f.addCard(t, u.ID, 0)

	metrics := new(MockMetrics)
	metrics.On("RecordError", "initiate", string(apperrors.KindInsufficientFunds)).Once()

	_, err := f.service(metrics).Initiate(context.Background(), u.ID, InitiateRequest{
		FromCardID: a.ID, ToCardID: b.ID, Amount: 10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.Equal(t, apperrors.KindInsufficientFunds, apperrors.KindOf(err))

	assert.Equal(t, int64(9), f.balance(t, a.ID))
	assert.Equal(t, int64(0), f.balance(t, b.ID))
	_, total, err := f.store.Transfers().List(context.Background(), allRows)
	require.NoError(t, err)
	assert.Zero(t, total)
	metrics.AssertExpectations(t)
}

func TestTransferService_InitiateValidation(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	other := f.addUser(t, "bob")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 0)
	foreign := f.addCard(t, other.ID, 0)
	blocked := f.addCardWith(t, u.ID, 1000, models.CardStatusBlocked, "2030-12")
	expired := f.addCardWith(t, u.ID, 1000, models.CardStatusActive, "2025-02")
	thisMonth := f.addCardWith(t, u.ID, 0, models.CardStatusActive, "2025-03")

	tests := []struct {
		name        string
		initiatorID uint
		req         InitiateRequest
		unlimited   bool
		wantKind    apperrors.Kind
		errMsg      string
	}{
		{
			name:        "missing source",
			initiatorID: u.ID,
			req:         InitiateRequest{ToCardID: b.ID, Amount: 1},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "fromCardId",
		},
		{
			name:        "missing destination",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, Amount: 1},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "toCardId",
		},
		{
			name:        "zero amount",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "amount",
		},
		{
			name:        "negative amount",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: -5},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "amount",
		},
		{
			name:        "negative ttl",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 1, TTLSeconds: ttl(-1)},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "ttlSeconds",
		},
		{
			name:        "ttl above maximum",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 1, TTLSeconds: ttl(86401)},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "ttlSeconds",
		},
		{
			name:        "ttl beyond duration range without a configured maximum",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 300, TTLSeconds: ttl(10_000_000_000)},
			unlimited:   true,
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "ttlSeconds",
		},
		{
			name:        "idempotency key too long",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 1, IdempotencyKey: strings.Repeat("k", 65)},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "idempotency key",
		},
		{
			name:        "same card",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: a.ID, Amount: 1},
			wantKind:    apperrors.KindBadRequest,
			errMsg:      "must differ",
		},
		{
			name:        "unknown card",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: 9999, Amount: 1},
			wantKind:    apperrors.KindNotFound,
			errMsg:      "card 9999 not found",
		},
		{
			name:        "unknown initiator",
			initiatorID: 4242,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 1},
			wantKind:    apperrors.KindNotFound,
			errMsg:      "user not found",
		},
		{
			name:        "destination owned by someone else",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: foreign.ID, Amount: 1},
			wantKind:    apperrors.KindOwnershipViolation,
			errMsg:      "different users",
		},
		{
			name:        "cards of another user",
			initiatorID: other.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 1},
			wantKind:    apperrors.KindOwnershipViolation,
		},
		{
			name:        "blocked source",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: blocked.ID, ToCardID: b.ID, Amount: 1},
			wantKind:    apperrors.KindInvalidState,
			errMsg:      "BLOCKED",
		},
		{
			name:        "blocked destination",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: a.ID, ToCardID: blocked.ID, Amount: 1},
			wantKind:    apperrors.KindInvalidState,
		},
		{
			name:        "expired source",
			initiatorID: u.ID,
			req:         InitiateRequest{FromCardID: expired.ID, ToCardID: b.ID, Amount: 1},
			wantKind:    apperrors.KindExpired,
			errMsg:      "2025-02",
		},
	}

	svc := f.service(nil)
	unlimited := NewService(f.store, f.clock, Config{}, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := svc
			if tt.unlimited {
				s = unlimited
			}
			_, err := s.Initiate(context.Background(), tt.initiatorID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperrors.KindOf(err))
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}

	// Nothing above moved money.
	assert.Equal(t, int64(1000), f.balance(t, a.ID))
	assert.Equal(t, int64(0), f.balance(t, b.ID))

	t.Run("card expiring this month is usable", func(t *testing.T) {
		res, err := svc.Initiate(context.Background(), u.ID, InitiateRequest{
			FromCardID: a.ID, ToCardID: thisMonth.ID, Amount: 5,
		})
		require.NoError(t, err)
		assert.Equal(t, models.TransferStatusCompleted, res.Status)
	})

	t.Run("largest ttl stays pending", func(t *testing.T) {
		res, err := unlimited.Initiate(context.Background(), u.ID, InitiateRequest{
			FromCardID: a.ID, ToCardID: b.ID, Amount: 300, TTLSeconds: ttl(int(LimitTTLSeconds)),
		})
		require.NoError(t, err)
		assert.Equal(t, models.TransferStatusPending, res.Status)
		require.NotNil(t, res.ExpiresAt)
		assert.True(t, res.ExpiresAt.After(baseTime))
		assert.Equal(t, int64(995), f.balance(t, a.ID))
	})
}

func TestTransferService_Idempotency(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	other := f.addUser(t, "bob")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 0)
	c := f.addCard(t, other.ID, 1000)
	d := f.addCard(t, other.ID, 0)
	svc := f.service(nil)
	ctx := context.Background()

	req := InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 100, IdempotencyKey: "order-1"}
	first, err := svc.Initiate(ctx, u.ID, req)
	require.NoError(t, err)

	t.Run("replay returns the original transfer", func(t *testing.T) {
		again, err := svc.Initiate(ctx, u.ID, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, int64(900), f.balance(t, a.ID))
		assert.Equal(t, int64(100), f.balance(t, b.ID))
	})

	t.Run("surrounding whitespace is ignored", func(t *testing.T) {
		padded := req
		padded.IdempotencyKey = "  order-1 "
		again, err := svc.Initiate(ctx, u.ID, padded)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("different parameters conflict", func(t *testing.T) {
		changed := req
		changed.Amount = 101
		_, err := svc.Initiate(ctx, u.ID, changed)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrIdempotencyMismatch)
		assert.Equal(t, apperrors.KindIdempotencyConflict, apperrors.KindOf(err))
	})

	t.Run("keys are scoped per initiator", func(t *testing.T) {
		res, err := svc.Initiate(ctx, other.ID, InitiateRequest{
			FromCardID: c.ID, ToCardID: d.ID, Amount: 100, IdempotencyKey: "order-1",
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, res.ID)
	})
}

func TestTransferService_IdempotencyRaceRecovers(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 0)

	rs := &racingStore{Store: f.store}
	svc := NewService(rs, f.clock, Config{}, nil, nil)
	ctx := context.Background()

	req := InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 250, IdempotencyKey: "race"}
	first, err := svc.Initiate(ctx, u.ID, req)
	require.NoError(t, err)

	rs.hide.Store(true)
	second, err := svc.Initiate(ctx, u.ID, req)
	require.NoError(t, err)
	assert.False(t, rs.hide.Load(), "outer lookup should have been bypassed once")
	assert.Equal(t, first.ID, second.ID)

	// The losing attempt rolled back its balance changes.
	assert.Equal(t, int64(750), f.balance(t, a.ID))
	assert.Equal(t, int64(250), f.balance(t, b.ID))

	rs.hide.Store(true)
	changed := req
	changed.Amount = 1
	_, err = svc.Initiate(ctx, u.ID, changed)
	assert.ErrorIs(t, err, apperrors.ErrIdempotencyMismatch)
}

func TestTransferService_ConcurrentOppositeTransfers(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 1000)
	svc := f.service(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const perDirection = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*perDirection)
	for i := 0; i < perDirection; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(ctx, u.ID, InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 10})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(ctx, u.ID, InitiateRequest{FromCardID: b.ID, ToCardID: a.ID, Amount: 7})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1000-perDirection*10+perDirection*7), f.balance(t, a.ID))
	assert.Equal(t, int64(1000+perDirection*10-perDirection*7), f.balance(t, b.ID))

	// Every transaction locked its cards in ascending id order.
	byTx := map[uint64][]uint{}
	for _, ev := range f.store.LockLog() {
		if ev.Tx != 0 && ev.Table == "cards" {
			byTx[ev.Tx] = append(byTx[ev.Tx], ev.ID)
		}
	}
	assert.Len(t, byTx, 2*perDirection)
	for tx, ids := range byTx {
		assert.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }), "tx %d locked %v", tx, ids)
		assert.Equal(t, []uint{a.ID, b.ID}, ids)
	}

	_, total, err := f.store.Transfers().List(context.Background(), allRows)
	require.NoError(t, err)
	assert.Equal(t, int64(2*perDirection), total)
}

func TestTransferService_Cancel(t *testing.T) {
	tests := []struct {
		name     string
		advance  time.Duration
		byOther  bool
		prepare  func(t *testing.T, f *fixture, svc Service, id uint)
		wantKind apperrors.Kind
	}{
		{
			name: "pending transfer is canceled",
		},
		{
			name:    "cancel at the expiry instant",
			advance: time.Hour,
		},
		{
			name:     "cancel after expiry",
			advance:  time.Hour + time.Second,
			wantKind: apperrors.KindExpired,
		},
		{
			name:     "only the initiator can cancel",
			byOther:  true,
			wantKind: apperrors.KindOwnershipViolation,
		},
		{
			name: "already canceled",
			prepare: func(t *testing.T, f *fixture, svc Service, id uint) {
				_, err := svc.Cancel(context.Background(), f.transfer(t, id).InitiatorID, id)
				require.NoError(t, err)
			},
			wantKind: apperrors.KindInvalidState,
		},
		{
			name: "already executed",
			prepare: func(t *testing.T, f *fixture, _ Service, _ uint) {
				f.clock.Add(2 * time.Hour)
				_, err := f.sweeper(ModeExecute).RunOnce(context.Background())
				require.NoError(t, err)
				f.clock.Set(baseTime)
			},
			wantKind: apperrors.KindInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			u := f.addUser(t, "alice")
			other := f.addUser(t, "bob")
			a := f.addCard(t, u.ID, 1000)
			b := f.addCard(t, u.ID, 0)
			svc := f.service(nil)

			pending, err := svc.Initiate(context.Background(), u.ID, InitiateRequest{
				FromCardID: a.ID, ToCardID: b.ID, Amount: 100, TTLSeconds: ttl(3600),
			})
			require.NoError(t, err)

			if tt.prepare != nil {
				tt.prepare(t, f, svc, pending.ID)
			}
			f.clock.Add(tt.advance)

			caller := u.ID
			if tt.byOther {
				caller = other.ID
			}
			res, err := svc.Cancel(context.Background(), caller, pending.ID)

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.TransferStatusCanceled, res.Status)
			assert.Equal(t, apperrors.FailureCanceled, res.FailureCode)
			assert.Equal(t, apperrors.FailureCanceledMessage, res.FailureMessage)
			assert.Equal(t, a.PanLast4, res.FromLast4)
			assert.Equal(t, int64(1000), f.balance(t, a.ID))
			assert.Equal(t, int64(0), f.balance(t, b.ID))
		})
	}
}

func TestTransferService_CancelUnknown(t *testing.T) {
	f := newFixture()
	_, err := f.service(nil).Cancel(context.Background(), 1, 77)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransferNotFound)
}

func TestTransferService_List(t *testing.T) {
	f := newFixture()
	u := f.addUser(t, "alice")
	other := f.addUser(t, "bob")
	a := f.addCard(t, u.ID, 1000)
	b := f.addCard(t, u.ID, 0)
	c := f.addCard(t, other.ID, 1000)
	d := f.addCard(t, other.ID, 0)
	svc := f.service(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Initiate(ctx, u.ID, InitiateRequest{FromCardID: a.ID, ToCardID: b.ID, Amount: 1})
		require.NoError(t, err)
	}
	_, err := svc.Initiate(ctx, other.ID, InitiateRequest{FromCardID: c.ID, ToCardID: d.ID, Amount: 1})
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, u.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.TotalElements)
	assert.Equal(t, 2, mine.TotalPages)
	assert.Len(t, mine.Content, 2)
	assert.False(t, mine.Last)
	assert.Greater(t, mine.Content[0].ID, mine.Content[1].ID)

	next, err := svc.ListMine(ctx, u.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, next.Content, 1)
	assert.True(t, next.Last)

	all, err := svc.ListAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.TotalElements)
	assert.Len(t, all.Content, 4)
	assert.Equal(t, d.PanLast4, all.Content[0].ToLast4)
}

func TestTransferService_ValidationMetrics(t *testing.T) {
	f := newFixture()
	metrics := new(MockMetrics)
	metrics.On("RecordError", "initiate", string(apperrors.KindBadRequest)).Once()

	_, err := f.service(metrics).Initiate(context.Background(), 1, InitiateRequest{})
	require.Error(t, err)
	metrics.AssertExpectations(t)
	metrics.AssertNotCalled(t, "RecordTransfer", mock.Anything, mock.Anything)
}
