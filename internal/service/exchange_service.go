package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/metrics"
	"bookswap/internal/models"

	log "github.com/sirupsen/logrus"
)

type ExchangeBookStore interface {
	GetByID(ctx context.Context, id uint) (*models.Book, error)
	TransitionStatus(ctx context.Context, id uint, from, to string) (bool, error)
}

type ExchangeStore interface {
	Create(ctx context.Context, req *models.ExchangeRequest) error
	GetByID(ctx context.Context, id uint) (*models.ExchangeRequest, error)
	HasOpenRequest(ctx context.Context, bookID, requesterID uint) (bool, error)
	Transition(ctx context.Context, id uint, from []string, to string) (bool, error)
	SetSettleTx(ctx context.Context, id, txID uint) error
	ListForUser(ctx context.Context, userID uint, incoming bool, limit int) ([]models.ExchangeRequest, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ExchangeRequest, error)
}

type ExchangeNotifier interface {
	NotifyExchange(ctx context.Context, userID uint, notifType string, req *models.ExchangeRequest) error
}

const expireBatch = 100

// ExchangeService moves points through the life of an exchange request: the
// requester pays up front, the owner is paid on completion and every other
// ending refunds the requester.
type ExchangeService struct {
	books     ExchangeBookStore
	exchanges ExchangeStore
	ledger    Movements
	notifier  ExchangeNotifier
	metrics   *metrics.Metrics
	expiry    time.Duration
	now       func() time.Time
}

func NewExchangeService(books ExchangeBookStore, exchanges ExchangeStore, ledger Movements, notifier ExchangeNotifier, m *metrics.Metrics, expiry time.Duration) *ExchangeService {
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &ExchangeService{books: books, exchanges: exchanges, ledger: ledger, notifier: notifier, metrics: m, expiry: expiry, now: time.Now}
}

// Request reserves the book and debits its point value from the requester.
func (s *ExchangeService) Request(ctx context.Context, requesterID, bookID uint, message string) (*models.ExchangeRequest, int64, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, 0, err
	}
	if book.OwnerID == requesterID {
		return nil, 0, domain.Invalid("book_id", "cannot request your own book")
	}
	if book.Status != domain.BookStatusAvailable {
		return nil, 0, fmt.Errorf("book %d is %s: %w", book.ID, book.Status, domain.ErrConflict)
	}
	open, err := s.exchanges.HasOpenRequest(ctx, book.ID, requesterID)
	if err != nil {
		return nil, 0, err
	}
	if open {
		return nil, 0, fmt.Errorf("book %d already requested: %w", book.ID, domain.ErrConflict)
	}
	won, err := s.books.TransitionStatus(ctx, book.ID, domain.BookStatusAvailable, domain.BookStatusPending)
	if err != nil {
		return nil, 0, err
	}
	if !won {
		return nil, 0, fmt.Errorf("book %d was just requested: %w", book.ID, domain.ErrConflict)
	}

	points := int64(book.PointValue)
	debit, err := s.ledger.ApplyMovement(ctx, ledger.Movement{
		UserID:      requesterID,
		Amount:      -points,
		Type:        domain.TxSpentRequest,
		Description: truncate(fmt.Sprintf("Requested %q", book.Title), 255),
	})
	if err != nil {
		s.releaseBook(ctx, book.ID)
		return nil, 0, err
	}

	req := &models.ExchangeRequest{
		BookID:      book.ID,
		RequesterID: requesterID,
		OwnerID:     book.OwnerID,
		Points:      points,
		Status:      domain.RequestStatusPending,
		Message:     truncate(strings.TrimSpace(message), 512),
		DebitTxID:   &debit.TransactionID,
		ExpiresAt:   s.now().Add(s.expiry),
	}
	if err := s.exchanges.Create(ctx, req); err != nil {
		s.compensate(ctx, requesterID, points, book.Title)
		s.releaseBook(ctx, book.ID)
		return nil, 0, fmt.Errorf("create exchange request: %w", err)
	}
	req.Book = *book
	s.notify(ctx, book.OwnerID, domain.NotifExchangeRequested, req)
	return req, debit.Balance, nil
}

func (s *ExchangeService) Accept(ctx context.Context, ownerID, requestID uint) (*models.ExchangeRequest, error) {
	req, err := s.exchanges.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	won, err := s.exchanges.Transition(ctx, req.ID, []string{domain.RequestStatusPending}, domain.RequestStatusAccepted)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("request %d is %s: %w", req.ID, req.Status, domain.ErrConflict)
	}
	req.Status = domain.RequestStatusAccepted
	s.notify(ctx, req.RequesterID, domain.NotifExchangeAccepted, req)
	return req, nil
}

// Reject is the owner's refusal of a pending or accepted request.
func (s *ExchangeService) Reject(ctx context.Context, ownerID, requestID uint) (*models.ExchangeRequest, error) {
	req, err := s.exchanges.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	_, err = s.settle(ctx, req,
		[]string{domain.RequestStatusPending, domain.RequestStatusAccepted}, domain.RequestStatusRejected,
		ledger.Movement{
			UserID:      req.RequesterID,
			Amount:      req.Points,
			Type:        domain.TxRefund,
			Description: truncate(fmt.Sprintf("Refund: request for %q declined", req.Book.Title), 255),
		})
	if err != nil {
		return nil, err
	}
	s.releaseBook(ctx, req.BookID)
	s.notify(ctx, req.RequesterID, domain.NotifExchangeRejected, req)
	return req, nil
}

// Cancel is the requester withdrawing a request the owner has not accepted yet.
func (s *ExchangeService) Cancel(ctx context.Context, requesterID, requestID uint) (*models.ExchangeRequest, error) {
	req, err := s.exchanges.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, domain.ErrForbidden
	}
	_, err = s.settle(ctx, req,
		[]string{domain.RequestStatusPending}, domain.RequestStatusCancelled,
		ledger.Movement{
			UserID:      req.RequesterID,
			Amount:      req.Points,
			Type:        domain.TxRefund,
			Description: truncate(fmt.Sprintf("Refund: request for %q cancelled", req.Book.Title), 255),
		})
	if err != nil {
		return nil, err
	}
	s.releaseBook(ctx, req.BookID)
	s.notify(ctx, req.OwnerID, domain.NotifExchangeCancelled, req)
	return req, nil
}

// Complete is the requester confirming the hand-over; the owner earns the points.
func (s *ExchangeService) Complete(ctx context.Context, requesterID, requestID uint) (*models.ExchangeRequest, error) {
	req, err := s.exchanges.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, domain.ErrForbidden
	}
	_, err = s.settle(ctx, req,
		[]string{domain.RequestStatusAccepted}, domain.RequestStatusCompleted,
		ledger.Movement{
			UserID:      req.OwnerID,
			Amount:      req.Points,
			Type:        domain.TxEarnedExchange,
			Description: truncate(fmt.Sprintf("Exchanged %q", req.Book.Title), 255),
		})
	if err != nil {
		return nil, err
	}
	if _, err := s.books.TransitionStatus(ctx, req.BookID, domain.BookStatusPending, domain.BookStatusExchanged); err != nil {
		log.WithError(err).WithField("book_id", req.BookID).Error("exchange: mark book exchanged")
	}
	s.notify(ctx, req.OwnerID, domain.NotifExchangeCompleted, req)
	return req, nil
}

// ExpireStale refunds pending requests whose hold ran out. Accepted requests
// wait for the requester and do not expire.
func (s *ExchangeService) ExpireStale(ctx context.Context) (int, error) {
	due, err := s.exchanges.ListExpired(ctx, s.now(), expireBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range due {
		req := &due[i]
		_, err := s.settle(ctx, req,
			[]string{domain.RequestStatusPending}, domain.RequestStatusExpired,
			ledger.Movement{
				UserID:      req.RequesterID,
				Amount:      req.Points,
				Type:        domain.TxRefund,
				Description: truncate(fmt.Sprintf("Refund: request for %q expired", req.Book.Title), 255),
			})
		if err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				log.WithError(err).WithField("request_id", req.ID).Error("exchange: expire request")
			}
			continue
		}
		s.releaseBook(ctx, req.BookID)
		s.notify(ctx, req.RequesterID, domain.NotifExchangeExpired, req)
		expired++
	}
	s.metrics.RequestsExpired(expired)
	return expired, nil
}

func (s *ExchangeService) List(ctx context.Context, userID uint, incoming bool) ([]models.ExchangeRequest, error) {
	return s.exchanges.ListForUser(ctx, userID, incoming, 50)
}

// settle claims the status change, then applies the movement. When the
// movement fails the request goes back to the status it was read in.
func (s *ExchangeService) settle(ctx context.Context, req *models.ExchangeRequest, from []string, to string, m ledger.Movement) (ledger.Result, error) {
	won, err := s.exchanges.Transition(ctx, req.ID, from, to)
	if err != nil {
		return ledger.Result{}, err
	}
	if !won {
		return ledger.Result{}, fmt.Errorf("request %d is %s: %w", req.ID, req.Status, domain.ErrConflict)
	}
	res, err := s.ledger.ApplyMovement(ctx, m)
	if err != nil {
		if _, rerr := s.exchanges.Transition(ctx, req.ID, []string{to}, req.Status); rerr != nil {
			log.WithError(rerr).WithFields(log.Fields{"request_id": req.ID, "reconcile": true}).Error("exchange: restore status")
		}
		return ledger.Result{}, err
	}
	if err := s.exchanges.SetSettleTx(ctx, req.ID, res.TransactionID); err != nil {
		log.WithError(err).WithField("request_id", req.ID).Warn("exchange: record settlement")
	}
	req.Status = to
	req.SettleTxID = &res.TransactionID
	return res, nil
}

// compensate refunds a debit whose request row could not be written.
func (s *ExchangeService) compensate(ctx context.Context, userID uint, points int64, title string) {
	_, err := s.ledger.ApplyMovement(ctx, ledger.Movement{
		UserID:      userID,
		Amount:      points,
		Type:        domain.TxRefund,
		Description: truncate(fmt.Sprintf("Refund: request for %q failed", title), 255),
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": userID, "amount": points, "reconcile": true}).Error("exchange: compensating refund failed")
	}
}

func (s *ExchangeService) releaseBook(ctx context.Context, bookID uint) {
	if _, err := s.books.TransitionStatus(ctx, bookID, domain.BookStatusPending, domain.BookStatusAvailable); err != nil {
		log.WithError(err).WithField("book_id", bookID).Error("exchange: release book")
	}
}

func (s *ExchangeService) notify(ctx context.Context, userID uint, notifType string, req *models.ExchangeRequest) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyExchange(ctx, userID, notifType, req); err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": userID, "type": notifType}).Warn("exchange notification failed")
	}
}
