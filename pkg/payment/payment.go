package payment

import (
	"context"
	"time"
)

type CheckoutRequest struct {
	UserID         uint
	Points         int64
	AmountCents    int64
	Currency       string
	ProductName    string
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
}

type CheckoutResponse struct {
	Reference   string
	CheckoutURL string
	ExpiresAt   time.Time
}

// Provider starts hosted checkouts. Completion arrives later through the payment webhook,
// carrying the userId and points metadata set here.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}
