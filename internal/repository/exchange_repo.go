package repository

import (
	"context"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/models"

	"gorm.io/gorm"
)

type ExchangeRepository struct {
	db *gorm.DB
}

func NewExchangeRepository(db *gorm.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

func (r *ExchangeRepository) Create(ctx context.Context, req *models.ExchangeRequest) error {
	return r.db.WithContext(ctx).Omit("Book", "Requester").Create(req).Error
}

func (r *ExchangeRepository) GetByID(ctx context.Context, id uint) (*models.ExchangeRequest, error) {
	var req models.ExchangeRequest
	if err := r.db.WithContext(ctx).Preload("Book").First(&req, id).Error; err != nil {
		return nil, notFound(err, "exchange request %d", id)
	}
	return &req, nil
}

func (r *ExchangeRepository) HasOpenRequest(ctx context.Context, bookID, requesterID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ExchangeRequest{}).
		Where("book_id = ? AND requester_id = ? AND status IN ?", bookID, requesterID,
			[]string{domain.RequestStatusPending, domain.RequestStatusAccepted}).
		Count(&n).Error
	return n > 0, err
}

// Transition moves a request to status `to` only while it is in one of `from`.
func (r *ExchangeRepository) Transition(ctx context.Context, id uint, from []string, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ExchangeRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *ExchangeRepository) SetSettleTx(ctx context.Context, id, txID uint) error {
	return r.db.WithContext(ctx).Model(&models.ExchangeRequest{}).Where("id = ?", id).Update("settle_tx_id", txID).Error
}

// ListForUser returns requests the user sent (outgoing) or received (incoming).
func (r *ExchangeRepository) ListForUser(ctx context.Context, userID uint, incoming bool, limit int) ([]models.ExchangeRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	col := "requester_id"
	if incoming {
		col = "owner_id"
	}
	var list []models.ExchangeRequest
	err := r.db.WithContext(ctx).Preload("Book").Where(col+" = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

// ListExpired returns pending requests whose hold ran out before now.
func (r *ExchangeRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ExchangeRequest, error) {
	var list []models.ExchangeRequest
	err := r.db.WithContext(ctx).Preload("Book").
		Where("status = ? AND expires_at < ?", domain.RequestStatusPending, now).
		Order("expires_at ASC").Limit(limit).Find(&list).Error
	return list, err
}

// CountPendingDemand counts pending requests for books with this title and author.
func (r *ExchangeRepository) CountPendingDemand(ctx context.Context, title, author string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Table("exchange_requests er").
		Joins("JOIN books b ON b.id = er.book_id AND b.deleted_at IS NULL").
		Where("er.deleted_at IS NULL AND er.status = ?", domain.RequestStatusPending).
		Where("LOWER(b.title) = ? AND LOWER(b.author) = ?",
			strings.ToLower(strings.TrimSpace(title)), strings.ToLower(strings.TrimSpace(author))).
		Count(&n).Error
	return int(n), err
}
