package repository

import (
	"context"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/models"

	"gorm.io/gorm"
)

type DashboardStats struct {
	TotalUsers        int64 `json:"total_users"`
	AvailableBooks    int64 `json:"available_books"`
	PendingRequests   int64 `json:"pending_requests"`
	CompletedSwaps    int64 `json:"completed_swaps"`
	PointsInWallets   int64 `json:"points_in_wallets"`
	PointsPurchased   int64 `json:"points_purchased"`
	PointsHeld        int64 `json:"points_held"` // debited for requests not yet settled
	TotalTransactions int64 `json:"total_transactions"`
	UnmatchedPayments int64 `json:"unmatched_payments"`
}

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var s DashboardStats
	db := r.db.WithContext(ctx)
	steps := []func() error{
		func() error { return db.Model(&models.User{}).Count(&s.TotalUsers).Error },
		func() error {
			return db.Model(&models.Book{}).Where("status = ?", domain.BookStatusAvailable).Count(&s.AvailableBooks).Error
		},
		func() error {
			return db.Model(&models.ExchangeRequest{}).Where("status = ?", domain.RequestStatusPending).Count(&s.PendingRequests).Error
		},
		func() error {
			return db.Model(&models.ExchangeRequest{}).Where("status = ?", domain.RequestStatusCompleted).Count(&s.CompletedSwaps).Error
		},
		func() error {
			return db.Model(&models.User{}).Select("COALESCE(SUM(points), 0)").Row().Scan(&s.PointsInWallets)
		},
		func() error {
			return db.Model(&models.PaymentEvent{}).Select("COALESCE(SUM(points), 0)").Row().Scan(&s.PointsPurchased)
		},
		func() error {
			return db.Model(&models.ExchangeRequest{}).
				Where("status IN ?", []string{domain.RequestStatusPending, domain.RequestStatusAccepted}).
				Select("COALESCE(SUM(points), 0)").Row().Scan(&s.PointsHeld)
		},
		func() error { return db.Model(&models.PointTransaction{}).Count(&s.TotalTransactions).Error },
		func() error {
			return db.Model(&models.AuditLog{}).Where("action = ?", "payment_unmatched").Count(&s.UnmatchedPayments).Error
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// ListUsers returns users with search and pagination.
func (r *AdminRepository) ListUsers(ctx context.Context, search string, page, limit int) ([]models.User, int64, error) {
	page, limit = pageBounds(page, limit)
	q := r.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		q = q.Where("username LIKE ? OR email LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error
	return users, total, err
}

// ListTransactions returns point transactions across all users with an optional type filter.
func (r *AdminRepository) ListTransactions(ctx context.Context, txType string, page, limit int) ([]models.PointTransaction, int64, error) {
	page, limit = pageBounds(page, limit)
	q := r.db.WithContext(ctx).Model(&models.PointTransaction{})
	if txType != "" {
		q = q.Where("type = ?", txType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.PointTransaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// PointsByDay sums the absolute points moved per day for the last N days.
func (r *AdminRepository) PointsByDay(ctx context.Context, days int) ([]TimeSeriesPoint, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	var points []TimeSeriesPoint
	err := r.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Select("DATE(created_at) as date, COALESCE(SUM(ABS(amount)), 0) as count").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return page, limit
}
