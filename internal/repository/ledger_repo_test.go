package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var (
	lockUserSQL   = regexp.QuoteMeta("SELECT `id`,`points` FROM `users`") + ".*FOR UPDATE"
	latestSQL     = regexp.QuoteMeta("SELECT MAX(created_at) FROM `point_transactions`")
	addPointsSQL  = regexp.QuoteMeta("UPDATE `users` SET `points`=points + ?")
	insertTxSQL   = regexp.QuoteMeta("INSERT INTO `point_transactions`")
	insertEvSQL   = regexp.QuoteMeta("INSERT INTO `payment_events`")
	linkEventSQL  = regexp.QuoteMeta("UPDATE `payment_events` SET `transaction_id`=?")
	historySQL    = regexp.QuoteMeta("SELECT * FROM `point_transactions` WHERE user_id = ?")
	historyCurSQL = regexp.QuoteMeta("AND (created_at < ? OR (created_at = ? AND id < ?)) ORDER BY created_at DESC, id DESC")
)

func TestLedgerRepositoryDebitCommits(t *testing.T) {
	db, mock := newMockDB(t)
	svc := ledger.NewService(NewLedgerRepository(db), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(lockUserSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "points"}).AddRow(1, 500))
	mock.ExpectQuery(latestSQL).WillReturnRows(sqlmock.NewRows([]string{"MAX(created_at)"}).AddRow(nil))
	mock.ExpectExec(addPointsSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertTxSQL).WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectCommit()

	res, err := svc.ApplyMovement(context.Background(), ledger.Movement{
		UserID: 1, Amount: -100, Type: domain.TxSpentRequest, Description: "Requested book",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(31), res.TransactionID)
	assert.Equal(t, int64(400), res.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryInsufficientBalanceRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	svc := ledger.NewService(NewLedgerRepository(db), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(lockUserSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "points"}).AddRow(1, 50))
	mock.ExpectRollback()

	_, err := svc.ApplyMovement(context.Background(), ledger.Movement{UserID: 1, Amount: -100, Type: domain.TxSpentRequest})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryConditionalUpdateRefusal(t *testing.T) {
	db, mock := newMockDB(t)
	svc := ledger.NewService(NewLedgerRepository(db), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(lockUserSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "points"}).AddRow(1, 500))
	mock.ExpectQuery(latestSQL).WillReturnRows(sqlmock.NewRows([]string{"MAX(created_at)"}).AddRow(time.Now()))
	mock.ExpectExec(addPointsSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.ApplyMovement(context.Background(), ledger.Movement{UserID: 1, Amount: -100, Type: domain.TxSpentRequest})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	svc := ledger.NewService(NewLedgerRepository(db), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(lockUserSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "points"}))
	mock.ExpectRollback()

	_, err := svc.ApplyMovement(context.Background(), ledger.Movement{UserID: 404, Amount: 10, Type: domain.TxBonus})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryPaymentCredit(t *testing.T) {
	db, mock := newMockDB(t)
	svc := ledger.NewService(NewLedgerRepository(db), nil)

	mock.ExpectBegin()
	mock.ExpectExec(insertEvSQL).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(lockUserSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "points"}).AddRow(42, 0))
	mock.ExpectQuery(latestSQL).WillReturnRows(sqlmock.NewRows([]string{"MAX(created_at)"}).AddRow(nil))
	mock.ExpectExec(addPointsSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertTxSQL).WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectExec(linkEventSQL).WithArgs(uint(77), uint(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.ApplyPaymentCredit(context.Background(), "evt_123", 42, 1000, "Purchased 1,000 points")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryDuplicateEventWritesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	svc := ledger.NewService(NewLedgerRepository(db), nil)

	mock.ExpectBegin()
	mock.ExpectExec(insertEvSQL).WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'evt_123' for key 'idx_payment_events_event_id'"})
	mock.ExpectRollback()

	_, err := svc.ApplyPaymentCredit(context.Background(), "evt_123", 42, 1000, "Purchased 1,000 points")
	require.ErrorIs(t, err, domain.ErrDuplicateEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryHistoryUsesKeysetCursor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(historySQL + ".*" + historyCurSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "type", "description", "created_at"}).
			AddRow(9, 1, -60, domain.TxSpentRequest, "Requested book", at.Add(-time.Minute)).
			AddRow(8, 1, 25, domain.TxEarnedListing, "Listing bonus", at.Add(-2*time.Minute)))

	rows, err := repo.History(context.Background(), 1, &ledger.Cursor{CreatedAt: at, ID: 10}, 21)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint(9), rows[0].ID)
	assert.Equal(t, int64(-60), rows[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositorySum(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0) FROM `point_transactions` WHERE user_id = ?")).
		WithArgs(uint(3)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(965))

	sum, err := repo.SumTransactions(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(965), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}
