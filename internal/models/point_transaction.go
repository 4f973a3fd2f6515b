package models

import "time"

// PointTransaction is one immutable ledger row. Amount is positive for credits and negative for debits.
type PointTransaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index:idx_point_tx_user_created,priority:1" json:"user_id"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Type        string    `gorm:"size:30;not null;index" json:"type"` // EARNED_LISTING, EARNED_EXCHANGE, SPENT_REQUEST, REFUND, BONUS
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `gorm:"not null;index:idx_point_tx_user_created,priority:2" json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (PointTransaction) TableName() string {
	return "point_transactions"
}
