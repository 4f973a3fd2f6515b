// Package memory is an in-process ledger.Store. Units of work are serialized
// by one mutex and their writes are staged until commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/models"
)

type Store struct {
	mu          sync.Mutex
	balances    map[uint]int64
	txs         []models.PointTransaction
	events      map[string]models.PaymentEvent
	nextTxID    uint
	nextEventID uint

	// FailAppend, when set, is consulted on every AppendTransaction after the
	// balance was already updated in the unit of work. A non-nil return aborts it.
	FailAppend func(row *models.PointTransaction) error
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		balances: make(map[uint]int64),
		events:   make(map[string]models.PaymentEvent),
	}
}

// AddUser registers a user with a zero balance.
func (s *Store) AddUser(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = 0
	}
}

// Transactions returns the committed rows of one user in append order.
func (s *Store) Transactions(userID uint) []models.PointTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PointTransaction
	for _, t := range s.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// PaymentEvents returns the number of claimed payment events.
func (s *Store) PaymentEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Atomic must not be re-entered from fn; the store methods outside Tx take the same lock.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{
		store:    s,
		balances: make(map[uint]int64),
		links:    make(map[uint]uint),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) Balance(ctx context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[userID]
	if !ok {
		return 0, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return b, nil
}

func (s *Store) History(ctx context.Context, userID uint, after *ledger.Cursor, limit int) ([]models.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.PointTransaction
	for _, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if after != nil && !olderThan(t, *after) {
			continue
		}
		rows = append(rows, t)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) SumTransactions(ctx context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.txs {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

func olderThan(t models.PointTransaction, c ledger.Cursor) bool {
	if t.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return t.CreatedAt.Equal(c.CreatedAt) && t.ID < c.ID
}

type memTx struct {
	store    *Store
	balances map[uint]int64
	txs      []models.PointTransaction
	events   []models.PaymentEvent
	links    map[uint]uint
}

func (t *memTx) balance(userID uint) (int64, bool) {
	if b, ok := t.balances[userID]; ok {
		return b, true
	}
	b, ok := t.store.balances[userID]
	return b, ok
}

func (t *memTx) LockUser(ctx context.Context, userID uint) (int64, error) {
	b, ok := t.balance(userID)
	if !ok {
		return 0, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return b, nil
}

func (t *memTx) LatestTransactionAt(ctx context.Context, userID uint) (time.Time, error) {
	var latest time.Time
	for _, rows := range [][]models.PointTransaction{t.store.txs, t.txs} {
		for _, r := range rows {
			if r.UserID == userID && r.CreatedAt.After(latest) {
				latest = r.CreatedAt
			}
		}
	}
	return latest, nil
}

func (t *memTx) AddPoints(ctx context.Context, userID uint, delta int64) error {
	b, ok := t.balance(userID)
	if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	if b+delta < 0 {
		return domain.ErrInsufficientBalance
	}
	t.balances[userID] = b + delta
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, row *models.PointTransaction) error {
	if hook := t.store.FailAppend; hook != nil {
		if err := hook(row); err != nil {
			return err
		}
	}
	row.ID = t.store.nextTxID + uint(len(t.txs)) + 1
	t.txs = append(t.txs, *row)
	return nil
}

func (t *memTx) ClaimPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	if _, ok := t.store.events[ev.EventID]; ok {
		return fmt.Errorf("event %s: %w", ev.EventID, domain.ErrDuplicateEvent)
	}
	for _, staged := range t.events {
		if staged.EventID == ev.EventID {
			return fmt.Errorf("event %s: %w", ev.EventID, domain.ErrDuplicateEvent)
		}
	}
	ev.ID = t.store.nextEventID + uint(len(t.events)) + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	t.events = append(t.events, *ev)
	return nil
}

func (t *memTx) LinkPaymentEvent(ctx context.Context, eventRowID, transactionID uint) error {
	t.links[eventRowID] = transactionID
	return nil
}

func (t *memTx) commit() {
	s := t.store
	for id, b := range t.balances {
		s.balances[id] = b
	}
	s.txs = append(s.txs, t.txs...)
	s.nextTxID += uint(len(t.txs))
	for _, ev := range t.events {
		if txID, ok := t.links[ev.ID]; ok {
			id := txID
			ev.TransactionID = &id
		}
		s.events[ev.EventID] = ev
	}
	s.nextEventID += uint(len(t.events))
}
