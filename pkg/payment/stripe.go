package payment

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider creates Stripe Checkout sessions with an explicitly constructed client.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string, backends *stripe.Backends) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key required")
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeProvider{api: api}, nil
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(req.UserID), 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata("userId", strconv.FormatUint(uint64(req.UserID), 10))
	params.AddMetadata("points", strconv.FormatInt(req.Points, 10))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutResponse{
		Reference:   s.ID,
		CheckoutURL: s.URL,
		ExpiresAt:   time.Unix(s.ExpiresAt, 0),
	}, nil
}
