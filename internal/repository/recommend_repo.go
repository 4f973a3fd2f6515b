package repository

import (
	"context"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/models"
	"bookswap/internal/recommend"

	"gorm.io/gorm"
)

// RecommendationRepository serves the read-only queries behind recommendations.
type RecommendationRepository struct {
	db *gorm.DB
}

var _ recommend.Source = (*RecommendationRepository)(nil)

func NewRecommendationRepository(db *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

// Candidates returns available books not owned by excludeOwner (0 excludes nobody), newest first.
func (r *RecommendationRepository) Candidates(ctx context.Context, excludeOwner uint, limit int) ([]models.Book, error) {
	q := r.db.WithContext(ctx).Where("status = ?", domain.BookStatusAvailable)
	if excludeOwner != 0 {
		q = q.Where("owner_id <> ?", excludeOwner)
	}
	var list []models.Book
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error
	return list, err
}

type interestRow struct {
	Genre  string
	Author string
	Weight float64
}

// Interests weighs the genres and authors a user lists (1), requests (3) and views (1).
func (r *RecommendationRepository) Interests(ctx context.Context, userID uint, since time.Time) (recommend.Interests, error) {
	in := recommend.Interests{Genres: map[string]float64{}, Authors: map[string]float64{}}
	db := r.db.WithContext(ctx)

	var owned, requested, viewed []interestRow
	if err := db.Table("books").
		Select("genre, author, COUNT(*) AS weight").
		Where("owner_id = ? AND deleted_at IS NULL", userID).
		Group("genre, author").Scan(&owned).Error; err != nil {
		return in, err
	}
	if err := db.Table("exchange_requests er").
		Select("b.genre, b.author, COUNT(*) * 3 AS weight").
		Joins("JOIN books b ON b.id = er.book_id").
		Where("er.requester_id = ? AND er.deleted_at IS NULL", userID).
		Group("b.genre, b.author").Scan(&requested).Error; err != nil {
		return in, err
	}
	if err := db.Table("book_views bv").
		Select("b.genre, b.author, COUNT(*) AS weight").
		Joins("JOIN books b ON b.id = bv.book_id").
		Where("bv.user_id = ? AND bv.created_at >= ?", userID, since).
		Group("b.genre, b.author").Scan(&viewed).Error; err != nil {
		return in, err
	}
	for _, rows := range [][]interestRow{owned, requested, viewed} {
		for _, row := range rows {
			if row.Genre != "" {
				in.Genres[row.Genre] += row.Weight
			}
			if row.Author != "" {
				in.Authors[row.Author] += row.Weight
			}
		}
	}
	return in, nil
}

type countRow struct {
	BookID uint
	N      int64
}

// Engagement counts pending requests and views per book since the given time.
func (r *RecommendationRepository) Engagement(ctx context.Context, bookIDs []uint, since time.Time) (map[uint]recommend.Engagement, error) {
	out := make(map[uint]recommend.Engagement, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}
	db := r.db.WithContext(ctx)
	var reqs, views []countRow
	if err := db.Table("exchange_requests").
		Select("book_id, COUNT(*) AS n").
		Where("book_id IN ? AND status = ? AND created_at >= ? AND deleted_at IS NULL", bookIDs, domain.RequestStatusPending, since).
		Group("book_id").Scan(&reqs).Error; err != nil {
		return nil, err
	}
	if err := db.Table("book_views").
		Select("book_id, COUNT(*) AS n").
		Where("book_id IN ? AND created_at >= ?", bookIDs, since).
		Group("book_id").Scan(&views).Error; err != nil {
		return nil, err
	}
	for _, row := range reqs {
		e := out[row.BookID]
		e.Requests = row.N
		out[row.BookID] = e
	}
	for _, row := range views {
		e := out[row.BookID]
		e.Views = row.N
		out[row.BookID] = e
	}
	return out, nil
}
