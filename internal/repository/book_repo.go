package repository

import (
	"context"
	"strings"

	"bookswap/internal/domain"
	"bookswap/internal/models"

	"gorm.io/gorm"
)

// BookFilters for the public catalogue.
type BookFilters struct {
	Query  string // matched against title and author
	Genre  string
	City   string
	Limit  int
	Offset int
}

type BookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) Create(ctx context.Context, b *models.Book) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookRepository) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	var b models.Book
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, notFound(err, "book %d", id)
	}
	return &b, nil
}

// List returns available books, newest first.
func (r *BookRepository) List(ctx context.Context, f BookFilters) ([]models.Book, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	q := r.db.WithContext(ctx).Where("status = ?", domain.BookStatusAvailable)
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(author) LIKE ?)", like, like)
	}
	if f.Genre != "" {
		q = q.Where("genre = ?", f.Genre)
	}
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	var list []models.Book
	err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error
	return list, err
}

func (r *BookRepository) ListByOwner(ctx context.Context, ownerID uint) ([]models.Book, error) {
	var list []models.Book
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&list).Error
	return list, err
}

// CountSimilar counts available listings with the same title and author, ignoring case.
func (r *BookRepository) CountSimilar(ctx context.Context, title, author string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("LOWER(title) = ? AND LOWER(author) = ? AND status = ?",
			strings.ToLower(strings.TrimSpace(title)), strings.ToLower(strings.TrimSpace(author)), domain.BookStatusAvailable).
		Count(&n).Error
	return int(n), err
}

// TransitionStatus moves a book from one status to another and reports
// whether this call won; a concurrent transition leaves it false.
func (r *BookRepository) TransitionStatus(ctx context.Context, id uint, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *BookRepository) RecordView(ctx context.Context, bookID uint, viewerID *uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.BookView{BookID: bookID, UserID: viewerID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Book{}).Where("id = ?", bookID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
	})
}
