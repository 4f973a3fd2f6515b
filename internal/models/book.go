package models

import (
	"time"

	"gorm.io/gorm"
)

type Book struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	OwnerID     uint           `gorm:"not null;index" json:"owner_id"`
	Title       string         `gorm:"size:255;not null;index:idx_books_title_author,priority:1" json:"title"`
	Author      string         `gorm:"size:255;not null;index:idx_books_title_author,priority:2" json:"author"`
	ISBN        string         `gorm:"size:20;index" json:"isbn"`
	Genre       string         `gorm:"size:64;index" json:"genre"`
	Condition   string         `gorm:"size:20;not null" json:"condition"`
	Description string         `gorm:"type:text" json:"description"`
	ImageURL    string         `gorm:"size:512" json:"image_url"`
	City        string         `gorm:"size:128" json:"city"`
	PointValue  int            `gorm:"not null" json:"point_value"` // set once at listing time
	Status      string         `gorm:"size:20;not null;default:'AVAILABLE';index" json:"status"`
	ViewCount   int64          `gorm:"not null;default:0" json:"view_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Owner User `gorm:"foreignKey:OwnerID" json:"-"`
}

func (Book) TableName() string {
	return "books"
}

// BookView is an engagement signal for recommendations.
type BookView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BookID    uint      `gorm:"not null;index" json:"book_id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (BookView) TableName() string {
	return "book_views"
}
