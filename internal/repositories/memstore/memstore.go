// Package memstore is an in-memory repositories.Store for tests. It mimics
// the PostgreSQL behavior the services rely on: row locks held until the
// transaction ends, optimistic version checks, staged writes discarded on
// rollback, and the unique constraints on card numbers, usernames and
// (initiator, idempotency key).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bankcards/internal/models"
	"bankcards/internal/repositories"
)

// LockEvent records a row lock acquisition. Tx is 0 for locks taken outside
// ExecuteInTransaction.
type LockEvent struct {
	Tx    uint64
	Table string
	ID    uint
}

type Store struct {
	mu        sync.Mutex
	cards     map[uint]models.Card
	transfers map[uint]models.Transfer
	users     map[uint]models.User
	nextID    map[string]uint
	rowLocks  map[string]chan struct{}
	lockLog   []LockEvent
	txSeq     uint64
	faults    map[string]error
	root      *view
}

var _ repositories.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		cards:     make(map[uint]models.Card),
		transfers: make(map[uint]models.Transfer),
		users:     make(map[uint]models.User),
		nextID:    make(map[string]uint),
		rowLocks:  make(map[string]chan struct{}),
		faults:    make(map[string]error),
	}
	s.root = &view{s: s}
	return s
}

func (s *Store) Cards() repositories.CardRepository         { return s.root.Cards() }
func (s *Store) Transfers() repositories.TransferRepository { return s.root.Transfers() }
func (s *Store) Users() repositories.UserRepository         { return s.root.Users() }

func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(repositories.Store) error) error {
	s.mu.Lock()
	s.txSeq++
	tx := &txState{
		id:        s.txSeq,
		held:      make(map[string]chan struct{}),
		cards:     make(map[uint]models.Card),
		transfers: make(map[uint]models.Transfer),
	}
	s.mu.Unlock()

	defer tx.releaseAll()

	if err := fn(&view{s: s, tx: tx}); err != nil {
		return err
	}
	return s.commit(tx)
}

// LockLog returns the row locks taken so far, in acquisition order.
func (s *Store) LockLog() []LockEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LockEvent, len(s.lockLog))
	copy(out, s.lockLog)
	return out
}

// FailTransferUpdate makes every update of transfer id fail with err.
func (s *Store) FailTransferUpdate(id uint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[rowKey("transfers", id)] = err
}

// FailFindDue makes FindDuePending fail with err.
func (s *Store) FailFindDue(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults["find_due"] = err
}

// FailCommit makes every later commit fail with err. Staged writes are dropped.
func (s *Store) FailCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults["commit"] = err
}

func (s *Store) fault(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[key]
}

func (s *Store) newID(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *Store) acquire(ctx context.Context, tx *txState, table string, id uint) (func(), error) {
	key := rowKey(table, id)
	if tx != nil {
		if _, ok := tx.held[key]; ok {
			return func() {}, nil
		}
	}

	s.mu.Lock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[key] = l
	}
	s.mu.Unlock()

	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to lock %s: %w", key, ctx.Err())
	}

	s.mu.Lock()
	var txID uint64
	if tx != nil {
		txID = tx.id
	}
	s.lockLog = append(s.lockLog, LockEvent{Tx: txID, Table: table, ID: id})
	s.mu.Unlock()

	if tx != nil {
		tx.held[key] = l
		return func() {}, nil
	}
	return func() { <-l }, nil
}

func (s *Store) commit(tx *txState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults["commit"]; err != nil {
		return err
	}
	for _, id := range tx.created {
		t := tx.transfers[id]
		if s.idempotencyTakenLocked(t.InitiatorID, t.IdempotencyKey, id) {
			return repositories.ErrDuplicateIdempotencyKey
		}
	}
	for id, c := range tx.cards {
		s.cards[id] = c
	}
	for id, t := range tx.transfers {
		s.transfers[id] = t
	}
	return nil
}

func (s *Store) idempotencyTakenLocked(initiatorID uint, key *string, self uint) bool {
	if key == nil {
		return false
	}
	for id, t := range s.transfers {
		if id != self && t.InitiatorID == initiatorID && t.IdempotencyKey != nil && *t.IdempotencyKey == *key {
			return true
		}
	}
	return false
}

type txState struct {
	id        uint64
	held      map[string]chan struct{}
	cards     map[uint]models.Card
	transfers map[uint]models.Transfer
	created   []uint
}

func (tx *txState) releaseAll() {
	for _, l := range tx.held {
		<-l
	}
}

// view binds repositories to either the committed state or a transaction.
type view struct {
	s  *Store
	tx *txState
}

func (v *view) Cards() repositories.CardRepository         { return &cardRepo{v} }
func (v *view) Transfers() repositories.TransferRepository { return &transferRepo{v} }
func (v *view) Users() repositories.UserRepository         { return &userRepo{v} }

func (v *view) ExecuteInTransaction(ctx context.Context, fn func(repositories.Store) error) error {
	if v.tx != nil {
		return fn(v)
	}
	return v.s.ExecuteInTransaction(ctx, fn)
}

func rowKey(table string, id uint) string {
	return fmt.Sprintf("%s:%d", table, id)
}

func paginate[T any](items []T, opts repositories.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// ---- cards ----

type cardRepo struct{ v *view }

func (r *cardRepo) current(id uint) (models.Card, bool) {
	if r.v.tx != nil {
		if c, ok := r.v.tx.cards[id]; ok {
			return c, true
		}
	}
	c, ok := r.v.s.cards[id]
	return c, ok
}

func (r *cardRepo) Create(_ context.Context, card *models.Card) error {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cards {
		if c.PanHash == card.PanHash {
			return repositories.ErrDuplicatePAN
		}
	}
	card.ID = s.newID("cards")
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	card.UpdatedAt = card.CreatedAt
	s.cards[card.ID] = *card
	return nil
}

func (r *cardRepo) GetByID(_ context.Context, id uint) (*models.Card, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	c, ok := r.current(id)
	if !ok {
		return nil, repositories.ErrCardNotFound
	}
	return &c, nil
}

func (r *cardRepo) LockForUpdate(ctx context.Context, id uint) (*models.Card, error) {
	r.v.s.mu.Lock()
	_, ok := r.current(id)
	r.v.s.mu.Unlock()
	if !ok {
		return nil, repositories.ErrCardNotFound
	}

	release, err := r.v.s.acquire(ctx, r.v.tx, "cards", id)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.GetByID(ctx, id)
}

func (r *cardRepo) Update(ctx context.Context, card *models.Card) error {
	release, err := r.v.s.acquire(ctx, r.v.tx, "cards", card.ID)
	if err != nil {
		return err
	}
	defer release()

	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := r.current(card.ID)
	if !ok || cur.Version != card.Version {
		return repositories.ErrStaleVersion
	}
	if card.Balance < 0 {
		return fmt.Errorf("failed to update card: balance check violated")
	}
	cur.Status = card.Status
	cur.Balance = card.Balance
	cur.Version = card.Version + 1
	cur.UpdatedAt = time.Now().UTC()
	if r.v.tx != nil {
		r.v.tx.cards[card.ID] = cur
	} else {
		s.cards[card.ID] = cur
	}
	card.Version++
	return nil
}

func (r *cardRepo) Delete(_ context.Context, id uint) error {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return repositories.ErrCardNotFound
	}
	for _, t := range s.transfers {
		if t.FromCardID == id || t.ToCardID == id {
			return fmt.Errorf("failed to delete card: referenced by transfer %d", t.ID)
		}
	}
	delete(s.cards, id)
	return nil
}

func (r *cardRepo) ExistsByPanHash(_ context.Context, panHash string) (bool, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cards {
		if c.PanHash == panHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *cardRepo) CountByUser(_ context.Context, userID uint) (int64, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.cards {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *cardRepo) ListByUser(_ context.Context, userID uint, status string, opts repositories.ListOptions) ([]*models.Card, int64, error) {
	return r.list(func(c models.Card) bool { return c.UserID == userID }, status, opts)
}

func (r *cardRepo) List(_ context.Context, status string, opts repositories.ListOptions) ([]*models.Card, int64, error) {
	return r.list(func(models.Card) bool { return true }, status, opts)
}

func (r *cardRepo) list(match func(models.Card) bool, status string, opts repositories.ListOptions) ([]*models.Card, int64, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*models.Card
	for _, c := range s.cards {
		if !match(c) || (status != "" && c.Status != status) {
			continue
		}
		c := c
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, opts), int64(len(all)), nil
}

// ---- transfers ----

type transferRepo struct{ v *view }

func (r *transferRepo) current(id uint) (models.Transfer, bool) {
	if r.v.tx != nil {
		if t, ok := r.v.tx.transfers[id]; ok {
			return t, true
		}
	}
	t, ok := r.v.s.transfers[id]
	return t, ok
}

// withCards returns a copy of t with both cards attached.
func (r *transferRepo) withCards(t models.Transfer) *models.Transfer {
	if c, ok := r.v.s.cards[t.FromCardID]; ok {
		t.FromCard = &c
	}
	if c, ok := r.v.s.cards[t.ToCardID]; ok {
		t.ToCard = &c
	}
	return &t
}

func (r *transferRepo) Create(_ context.Context, transfer *models.Transfer) error {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idempotencyTakenLocked(transfer.InitiatorID, transfer.IdempotencyKey, 0) {
		return repositories.ErrDuplicateIdempotencyKey
	}
	if r.v.tx != nil && transfer.IdempotencyKey != nil {
		for _, id := range r.v.tx.created {
			t := r.v.tx.transfers[id]
			if t.InitiatorID == transfer.InitiatorID && t.IdempotencyKey != nil && *t.IdempotencyKey == *transfer.IdempotencyKey {
				return repositories.ErrDuplicateIdempotencyKey
			}
		}
	}
	if transfer.Amount <= 0 {
		return fmt.Errorf("failed to create transfer: amount check violated")
	}

	transfer.ID = s.newID("transfers")
	stored := *transfer
	stored.FromCard, stored.ToCard = nil, nil
	if r.v.tx != nil {
		r.v.tx.transfers[transfer.ID] = stored
		r.v.tx.created = append(r.v.tx.created, transfer.ID)
	} else {
		s.transfers[transfer.ID] = stored
	}
	return nil
}

func (r *transferRepo) GetByID(_ context.Context, id uint) (*models.Transfer, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	t, ok := r.current(id)
	if !ok {
		return nil, repositories.ErrTransferNotFound
	}
	return r.withCards(t), nil
}

func (r *transferRepo) LockForUpdate(ctx context.Context, id uint) (*models.Transfer, error) {
	r.v.s.mu.Lock()
	_, ok := r.current(id)
	r.v.s.mu.Unlock()
	if !ok {
		return nil, repositories.ErrTransferNotFound
	}

	release, err := r.v.s.acquire(ctx, r.v.tx, "transfers", id)
	if err != nil {
		return nil, err
	}
	defer release()

	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	t, _ := r.current(id)
	return &t, nil
}

func (r *transferRepo) Update(ctx context.Context, transfer *models.Transfer) error {
	if err := r.v.s.fault(rowKey("transfers", transfer.ID)); err != nil {
		return err
	}

	release, err := r.v.s.acquire(ctx, r.v.tx, "transfers", transfer.ID)
	if err != nil {
		return err
	}
	defer release()

	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := r.current(transfer.ID)
	if !ok || cur.Version != transfer.Version || cur.Status != models.TransferStatusPending {
		return repositories.ErrStaleVersion
	}
	cur.Status = transfer.Status
	cur.ExecutedAt = transfer.ExecutedAt
	cur.FailureCode = transfer.FailureCode
	cur.FailureMessage = transfer.FailureMessage
	cur.Version = transfer.Version + 1
	if r.v.tx != nil {
		r.v.tx.transfers[transfer.ID] = cur
	} else {
		s.transfers[transfer.ID] = cur
	}
	transfer.Version++
	return nil
}

func (r *transferRepo) GetByIdempotencyKey(_ context.Context, initiatorID uint, key string) (*models.Transfer, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transfers {
		if t.InitiatorID == initiatorID && t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return r.withCards(t), nil
		}
	}
	return nil, repositories.ErrTransferNotFound
}

func (r *transferRepo) FindDuePending(_ context.Context, cutoff time.Time, limit int) ([]uint, error) {
	if err := r.v.s.fault("find_due"); err != nil {
		return nil, err
	}

	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint
	for id, t := range s.transfers {
		if t.Status == models.TransferStatusPending && t.IsDue(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *transferRepo) ListByInitiator(_ context.Context, initiatorID uint, opts repositories.ListOptions) ([]*models.Transfer, int64, error) {
	return r.list(func(t models.Transfer) bool { return t.InitiatorID == initiatorID }, opts)
}

func (r *transferRepo) List(_ context.Context, opts repositories.ListOptions) ([]*models.Transfer, int64, error) {
	return r.list(func(models.Transfer) bool { return true }, opts)
}

func (r *transferRepo) list(match func(models.Transfer) bool, opts repositories.ListOptions) ([]*models.Transfer, int64, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*models.Transfer
	for _, t := range s.transfers {
		if match(t) {
			all = append(all, r.withCards(t))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, opts), int64(len(all)), nil
}

func (r *transferRepo) ExistsByCard(_ context.Context, cardID uint) (bool, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transfers {
		if t.FromCardID == cardID || t.ToCardID == cardID {
			return true, nil
		}
	}
	return false, nil
}

// ---- users ----

type userRepo struct{ v *view }

func (r *userRepo) Create(_ context.Context, user *models.User) error {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			return repositories.ErrDuplicateUsername
		}
	}
	user.ID = s.newID("users")
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uint) (*models.User, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *userRepo) Update(_ context.Context, user *models.User) error {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[user.ID]
	if !ok || cur.Version != user.Version {
		return repositories.ErrStaleVersion
	}
	cur.Roles = user.Roles
	cur.Enabled = user.Enabled
	cur.Version = user.Version + 1
	cur.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = cur
	user.Version++
	return nil
}

func (r *userRepo) Delete(_ context.Context, id uint) error {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (r *userRepo) List(_ context.Context, search string, opts repositories.ListOptions) ([]*models.User, int64, error) {
	s := r.v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	search = strings.ToLower(strings.TrimSpace(search))
	var all []*models.User
	for _, u := range s.users {
		if search != "" && !strings.Contains(strings.ToLower(u.Username), search) {
			continue
		}
		u := u
		all = append(all, &u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, opts), int64(len(all)), nil
}
