package payment

import (
	"context"
	"fmt"
	"time"
)

// StubProvider is a no-op provider for development; no webhook will ever follow.
type StubProvider struct{}

func (s *StubProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	ref := fmt.Sprintf("stub_%d_%d", time.Now().UnixNano(), req.UserID)
	return &CheckoutResponse{
		Reference:   ref,
		CheckoutURL: "",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}, nil
}
