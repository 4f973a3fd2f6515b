package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/ledger/memory"
	"bookswap/internal/models"
	"bookswap/internal/valuation"
)

type fakeBooks struct {
	mu        sync.Mutex
	books     map[uint]*models.Book
	nextID    uint
	createErr error
}

func newFakeBooks(books ...models.Book) *fakeBooks {
	f := &fakeBooks{books: make(map[uint]*models.Book)}
	for i := range books {
		b := books[i]
		f.books[b.ID] = &b
		if b.ID > f.nextID {
			f.nextID = b.ID
		}
	}
	return f
}

func (f *fakeBooks) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("book %d: %w", id, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBooks) TransitionStatus(ctx context.Context, id uint, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	return true, nil
}

func (f *fakeBooks) Create(ctx context.Context, b *models.Book) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b.ID = f.nextID
	cp := *b
	f.books[b.ID] = &cp
	return nil
}

func (f *fakeBooks) CountSimilar(ctx context.Context, title, author string) (int, error) {
	return 0, nil
}

func (f *fakeBooks) status(id uint) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[id].Status
}

type fakeExchanges struct {
	mu        sync.Mutex
	reqs      map[uint]*models.ExchangeRequest
	books     *fakeBooks
	nextID    uint
	createErr error
}

func newFakeExchanges(books *fakeBooks) *fakeExchanges {
	return &fakeExchanges{reqs: make(map[uint]*models.ExchangeRequest), books: books}
}

func (f *fakeExchanges) Create(ctx context.Context, req *models.ExchangeRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = f.nextID
	cp := *req
	f.reqs[req.ID] = &cp
	return nil
}

func (f *fakeExchanges) GetByID(ctx context.Context, id uint) (*models.ExchangeRequest, error) {
	f.mu.Lock()
	r, ok := f.reqs[id]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("request %d: %w", id, domain.ErrNotFound)
	}
	cp := *r
	if b, err := f.books.GetByID(ctx, r.BookID); err == nil {
		cp.Book = *b
	}
	return &cp, nil
}

func (f *fakeExchanges) HasOpenRequest(ctx context.Context, bookID, requesterID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reqs {
		if r.BookID == bookID && r.RequesterID == requesterID && r.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeExchanges) Transition(ctx context.Context, id uint, from []string, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reqs[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if r.Status == s {
			r.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeExchanges) SetSettleTx(ctx context.Context, id, txID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := txID
	f.reqs[id].SettleTxID = &tx
	return nil
}

func (f *fakeExchanges) ListForUser(ctx context.Context, userID uint, incoming bool, limit int) ([]models.ExchangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExchangeRequest
	for _, r := range f.reqs {
		if (incoming && r.OwnerID == userID) || (!incoming && r.RequesterID == userID) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeExchanges) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ExchangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExchangeRequest
	for _, r := range f.reqs {
		if r.Status == domain.RequestStatusPending && r.ExpiresAt.Before(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeExchanges) status(id uint) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[id].Status
}

type sentNotification struct {
	UserID uint
	Type   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) NotifyExchange(ctx context.Context, userID uint, notifType string, req *models.ExchangeRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Type: notifType})
	return nil
}

func (n *recordingNotifier) NotifyListingValued(ctx context.Context, ownerID uint, book *models.Book, bonus int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: ownerID, Type: domain.NotifListingValued})
	return nil
}

func (n *recordingNotifier) last() sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentNotification{}
	}
	return n.sent[len(n.sent)-1]
}

// failingLedger wraps a real ledger and fails movements of one type.
type failingLedger struct {
	*ledger.Service
	failType string
}

func (l *failingLedger) ApplyMovement(ctx context.Context, m ledger.Movement) (ledger.Result, error) {
	if m.Type == l.failType {
		return ledger.Result{}, fmt.Errorf("ledger unavailable")
	}
	return l.Service.ApplyMovement(ctx, m)
}

type fakeUsers map[uint]bool

func (u fakeUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if !u[id] {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return &models.User{ID: id}, nil
}

type fixedDemand int

func (d fixedDemand) CountPendingDemand(ctx context.Context, title, author string) (int, error) {
	return int(d), nil
}

type fixedValuer struct {
	points int
	got    valuation.Input
}

func (v *fixedValuer) Estimate(ctx context.Context, in valuation.Input) valuation.Estimate {
	v.got = in
	return valuation.Estimate{Points: v.points, Source: valuation.SourceFallback}
}

func newMemoryLedger(users ...uint) (*ledger.Service, *memory.Store) {
	store := memory.New()
	for _, id := range users {
		store.AddUser(id)
	}
	return ledger.NewService(store, nil), store
}
