package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is the MySQL ledger store. The user row is locked with
// SELECT ... FOR UPDATE so movements on one user serialize.
type LedgerRepository struct {
	db *gorm.DB
}

var _ ledger.Store = (*LedgerRepository)(nil)

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerTx{db: tx})
	})
}

func (r *LedgerRepository) Balance(ctx context.Context, userID uint) (int64, error) {
	var u models.User
	err := r.db.WithContext(ctx).Select("id", "points").First(&u, userID).Error
	if err != nil {
		return 0, notFound(err, "user %d", userID)
	}
	return u.Points, nil
}

func (r *LedgerRepository) History(ctx context.Context, userID uint, after *ledger.Cursor, limit int) ([]models.PointTransaction, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if after != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var rows []models.PointTransaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *LedgerRepository) SumTransactions(ctx context.Context, userID uint) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&sum)
	return sum, err
}

type ledgerTx struct {
	db *gorm.DB
}

func (t *ledgerTx) LockUser(ctx context.Context, userID uint) (int64, error) {
	var u models.User
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "points").
		First(&u, userID).Error
	if err != nil {
		return 0, notFound(err, "user %d", userID)
	}
	return u.Points, nil
}

func (t *ledgerTx) LatestTransactionAt(ctx context.Context, userID uint) (time.Time, error) {
	var latest sql.NullTime
	err := t.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("MAX(created_at)").
		Row().Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time.UTC(), nil
}

func (t *ledgerTx) AddPoints(ctx context.Context, userID uint, delta int64) error {
	res := t.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND points + ? >= 0", userID, delta).
		UpdateColumn("points", gorm.Expr("points + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", userID, domain.ErrInsufficientBalance)
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, row *models.PointTransaction) error {
	return t.db.WithContext(ctx).Create(row).Error
}

func (t *ledgerTx) ClaimPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	err := t.db.WithContext(ctx).Create(ev).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("event %s: %w", ev.EventID, domain.ErrDuplicateEvent)
	}
	return err
}

func (t *ledgerTx) LinkPaymentEvent(ctx context.Context, eventRowID, transactionID uint) error {
	return t.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("id = ?", eventRowID).
		UpdateColumn("transaction_id", transactionID).Error
}

// notFound maps gorm.ErrRecordNotFound to domain.ErrNotFound and passes anything else through.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return err
}
