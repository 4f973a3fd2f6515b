// Package ledger owns every change to a member's point balance. Each movement
// appends one immutable transaction row and updates the cached balance in a
// single unit of work.
package ledger

import (
	"context"
	"time"

	"bookswap/internal/models"
)

// Tx is the set of operations available inside one unit of work.
// Nothing done through a Tx is visible to other readers until Atomic returns nil.
type Tx interface {
	// LockUser returns the current balance and holds the user against
	// concurrent movements until the unit of work ends. Unknown users yield
	// domain.ErrNotFound.
	LockUser(ctx context.Context, userID uint) (int64, error)
	// LatestTransactionAt is the creation time of the user's newest transaction,
	// zero when there is none.
	LatestTransactionAt(ctx context.Context, userID uint) (time.Time, error)
	// AddPoints must refuse with domain.ErrInsufficientBalance when the result would be negative.
	AddPoints(ctx context.Context, userID uint, delta int64) error
	AppendTransaction(ctx context.Context, row *models.PointTransaction) error
	// ClaimPaymentEvent inserts the idempotency record; an event id that was
	// already claimed yields domain.ErrDuplicateEvent.
	ClaimPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error
	LinkPaymentEvent(ctx context.Context, eventRowID, transactionID uint) error
}

// Cursor positions a history page on the (created_at, id) key.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// Reader serves balance and history queries outside of a unit of work.
type Reader interface {
	Balance(ctx context.Context, userID uint) (int64, error)
	// History returns transactions newest first, strictly older than after when it is set.
	History(ctx context.Context, userID uint, after *Cursor, limit int) ([]models.PointTransaction, error)
	SumTransactions(ctx context.Context, userID uint) (int64, error)
}

// Store is implemented by repository.LedgerRepository (MySQL) and memory.Store.
type Store interface {
	Reader
	// Atomic runs fn in one unit of work: commit when fn returns nil, roll back otherwise.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}
