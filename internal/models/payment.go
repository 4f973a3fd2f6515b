package models

import "time"

// PaymentEvent is the idempotency record for a processed payment-completion event.
// It is written in the same database transaction as the credit it caused.
type PaymentEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EventID       string    `gorm:"size:255;not null;uniqueIndex" json:"event_id"`
	Provider      string    `gorm:"size:50;not null" json:"provider"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Points        int64     `gorm:"not null" json:"points"`
	Status        string    `gorm:"size:20;not null" json:"status"`
	TransactionID *uint     `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
