package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bookswap/internal/domain"
	"bookswap/internal/metrics"
	"bookswap/internal/models"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Movement is a signed change to one user's balance.
type Movement struct {
	UserID      uint
	Amount      int64
	Type        string
	Description string
}

// Result is the state right after a movement committed.
type Result struct {
	TransactionID uint      `json:"transaction_id"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
}

type Page struct {
	Items      []models.PointTransaction `json:"items"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

type Reconciliation struct {
	UserID  uint  `json:"user_id"`
	Balance int64 `json:"balance"`
	Sum     int64 `json:"sum"`
	Drift   int64 `json:"drift"`
}

type Service struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (m Movement) validate() error {
	if m.UserID == 0 {
		return domain.Invalid("user_id", "required")
	}
	if m.Amount == 0 {
		return domain.Invalid("amount", "must not be zero")
	}
	if !domain.IsTransactionType(m.Type) {
		return domain.Invalid("type", fmt.Sprintf("unknown transaction type %q", m.Type))
	}
	if utf8.RuneCountInString(m.Description) > 255 {
		return domain.Invalid("description", "too long")
	}
	return nil
}

// ApplyMovement appends one transaction and updates the cached balance
// atomically. A debit larger than the balance fails with
// domain.ErrInsufficientBalance and changes nothing.
func (s *Service) ApplyMovement(ctx context.Context, m Movement) (Result, error) {
	if err := m.validate(); err != nil {
		return Result{}, err
	}
	var res Result
	err := s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		res, err = s.apply(ctx, tx, m)
		return err
	})
	s.metrics.LedgerMovement(m.Type, outcome(err))
	if err != nil {
		return Result{}, err
	}
	log.WithFields(log.Fields{
		"user_id": m.UserID,
		"amount":  m.Amount,
		"type":    m.Type,
		"balance": res.Balance,
	}).Debug("ledger movement applied")
	return res, nil
}

// ApplyPaymentCredit claims eventID and credits the purchased points in the
// same unit of work. A redelivered event fails with domain.ErrDuplicateEvent
// and writes nothing.
func (s *Service) ApplyPaymentCredit(ctx context.Context, eventID string, userID uint, points int64, description string) (Result, error) {
	if strings.TrimSpace(eventID) == "" {
		return Result{}, domain.Invalid("event_id", "required")
	}
	if points <= 0 {
		return Result{}, domain.Invalid("points", "must be positive")
	}
	m := Movement{UserID: userID, Amount: points, Type: domain.TxBonus, Description: description}
	if err := m.validate(); err != nil {
		return Result{}, err
	}
	var res Result
	err := s.store.Atomic(ctx, func(tx Tx) error {
		ev := &models.PaymentEvent{
			EventID:  eventID,
			Provider: "stripe",
			UserID:   userID,
			Points:   points,
			Status:   domain.PaymentEventProcessed,
		}
		if err := tx.ClaimPaymentEvent(ctx, ev); err != nil {
			return err
		}
		var err error
		res, err = s.apply(ctx, tx, m)
		if err != nil {
			return err
		}
		return tx.LinkPaymentEvent(ctx, ev.ID, res.TransactionID)
	})
	s.metrics.LedgerMovement(m.Type, outcome(err))
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, tx Tx, m Movement) (Result, error) {
	balance, err := tx.LockUser(ctx, m.UserID)
	if err != nil {
		return Result{}, err
	}
	if balance+m.Amount < 0 {
		return Result{}, fmt.Errorf("%w: balance %d, debit %d", domain.ErrInsufficientBalance, balance, -m.Amount)
	}
	latest, err := tx.LatestTransactionAt(ctx, m.UserID)
	if err != nil {
		return Result{}, err
	}
	at := s.now().UTC().Truncate(time.Millisecond)
	if at.Before(latest) {
		at = latest
	}
	if err := tx.AddPoints(ctx, m.UserID, m.Amount); err != nil {
		return Result{}, err
	}
	row := &models.PointTransaction{
		UserID:      m.UserID,
		Amount:      m.Amount,
		Type:        m.Type,
		Description: m.Description,
		CreatedAt:   at,
	}
	if err := tx.AppendTransaction(ctx, row); err != nil {
		return Result{}, err
	}
	return Result{TransactionID: row.ID, Balance: balance + m.Amount, CreatedAt: at}, nil
}

func (s *Service) GetBalance(ctx context.Context, userID uint) (int64, error) {
	return s.store.Balance(ctx, userID)
}

// GetHistory pages through a user's transactions newest first. cursor is the
// NextCursor of the previous page, empty for the first one.
func (s *Service) GetHistory(ctx context.Context, userID uint, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	var after *Cursor
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		after = &c
	}
	if _, err := s.store.Balance(ctx, userID); err != nil {
		return Page{}, err
	}
	rows, err := s.store.History(ctx, userID, after, limit+1)
	if err != nil {
		return Page{}, err
	}
	page := Page{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[limit-1]
		page.NextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Items == nil {
		page.Items = []models.PointTransaction{}
	}
	return page, nil
}

// Reconcile compares the cached balance with the sum of the user's transactions.
func (s *Service) Reconcile(ctx context.Context, userID uint) (Reconciliation, error) {
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum, err := s.store.SumTransactions(ctx, userID)
	if err != nil {
		return Reconciliation{}, err
	}
	r := Reconciliation{UserID: userID, Balance: balance, Sum: sum, Drift: balance - sum}
	if r.Drift != 0 {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"balance":   balance,
			"sum":       sum,
			"reconcile": true,
		}).Error("ledger drift detected")
	}
	return r, nil
}

func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + strconv.FormatUint(uint64(c.ID), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, domain.Invalid("cursor", "malformed")
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, domain.Invalid("cursor", "malformed")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, domain.Invalid("cursor", "malformed")
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return Cursor{}, domain.Invalid("cursor", "malformed")
	}
	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: uint(n)}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrDuplicateEvent):
		return "duplicate"
	case errors.Is(err, domain.ErrNotFound):
		return "unknown_user"
	default:
		return "error"
	}
}
