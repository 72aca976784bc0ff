package transfer

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"bankcards/internal/clock"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/repositories/memstore"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memstore.Store
	clock *clock.Mock
	seq   int
}

func newFixture() *fixture {
	return &fixture{
		store: memstore.New(),
		clock: clock.NewMock(baseTime),
	}
}

func (f *fixture) service(metrics MetricsCollector) Service {
	return NewService(f.store, f.clock, Config{MaxTTLSeconds: 86400}, nil, metrics)
}

func (f *fixture) sweeper(mode Mode) *Sweeper {
	return NewSweeper(f.store, f.clock, SweeperConfig{Mode: mode, BatchSize: 50}, nil, nil, nil)
}

func (f *fixture) addUser(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Enabled: true, Roles: models.RoleUser}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) addCard(t *testing.T, userID uint, balance int64) *models.Card {
	t.Helper()
	return f.addCardWith(t, userID, balance, models.CardStatusActive, "2030-12")
}

func (f *fixture) addCardWith(t *testing.T, userID uint, balance int64, status, expiry string) *models.Card {
	t.Helper()
	f.seq++
	c := &models.Card{
		UserID:        userID,
		PanCiphertext: "ct",
		PanHash:       fmt.Sprintf("hash-%d", f.seq),
		PanLast4:      fmt.Sprintf("%04d", f.seq),
		Expiry:        expiry,
		Status:        status,
		Balance:       balance,
	}
	require.NoError(t, f.store.Cards().Create(context.Background(), c))
	return c
}

func (f *fixture) balance(t *testing.T, cardID uint) int64 {
	t.Helper()
	c, err := f.store.Cards().GetByID(context.Background(), cardID)
	require.NoError(t, err)
	return c.Balance
}

func (f *fixture) transfer(t *testing.T, id uint) *models.Transfer {
	t.Helper()
	tr, err := f.store.Transfers().GetByID(context.Background(), id)
	require.NoError(t, err)
	return tr
}

func (f *fixture) setStatus(t *testing.T, cardID uint, status string) {
	t.Helper()
	c, err := f.store.Cards().GetByID(context.Background(), cardID)
	require.NoError(t, err)
	c.Status = status
	require.NoError(t, f.store.Cards().Update(context.Background(), c))
}

func ttl(seconds int) *int { return &seconds }

// MockMetrics records collector calls.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordTransfer(status string, amount int64) {
	m.Called(status, amount)
}

func (m *MockMetrics) RecordError(op, kind string) {
	m.Called(op, kind)
}

func (m *MockMetrics) RecordSweep(mode string, processed int) {
	m.Called(mode, processed)
}

// racingStore hides an existing idempotency key from the first outer lookup,
// as if a concurrent request committed it just after the lookup ran.
type racingStore struct {
	*memstore.Store
	hide atomic.Bool
}

func (r *racingStore) Transfers() repositories.TransferRepository {
	return &racingTransfers{TransferRepository: r.Store.Transfers(), owner: r}
}

type racingTransfers struct {
	repositories.TransferRepository
	owner *racingStore
}

func (r *racingTransfers) GetByIdempotencyKey(ctx context.Context, initiatorID uint, key string) (*models.Transfer, error) {
	if r.owner.hide.CompareAndSwap(true, false) {
		return nil, repositories.ErrTransferNotFound
	}
	return r.TransferRepository.GetByIdempotencyKey(ctx, initiatorID, key)
}

var allRows = repositories.ListOptions{}
