package models

import (
	"time"

	"gorm.io/gorm"
)

// ExchangeRequest is a member asking for a listed book, paid for up front in points.
type ExchangeRequest struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	BookID      uint           `gorm:"not null;index" json:"book_id"`
	RequesterID uint           `gorm:"not null;index" json:"requester_id"`
	OwnerID     uint           `gorm:"not null;index" json:"owner_id"`
	Points      int64          `gorm:"not null" json:"points"`
	Status      string         `gorm:"size:20;not null;index" json:"status"` // PENDING, ACCEPTED, COMPLETED, REJECTED, CANCELLED, EXPIRED
	Message     string         `gorm:"size:512" json:"message"`
	DebitTxID   *uint          `json:"debit_tx_id"`
	SettleTxID  *uint          `json:"settle_tx_id"`
	ExpiresAt   time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Book      Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Requester User `gorm:"foreignKey:RequesterID" json:"-"`
}

func (ExchangeRequest) TableName() string {
	return "exchange_requests"
}

// IsOpen reports whether the points for this request are still held.
func (r *ExchangeRequest) IsOpen() bool {
	return r.Status == "PENDING" || r.Status == "ACCEPTED"
}
