// Package payment settles completed rides against an external charge
// backend. The default backend is the in-house payment gateway; a Stripe
// backend is available behind the same interface.
package payment

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrUpstream signals that the backend could not confirm the charge within
// the retry budget. Domain state must be left untouched so the same user
// action can retry the settlement.
var ErrUpstream = errors.New("payment upstream failure")

// HistoryProvider supplies the rider's full ride history ordered by
// creation time ascending. The gateway may ask for it to reconcile a
// request it processed but never acknowledged.
type HistoryProvider func(ctx context.Context) ([]models.Ride, error)

// SettleRequest carries everything one logical settlement attempt needs.
type SettleRequest struct {
	GatewayURL string // ignored by backends with a fixed endpoint
	Token      string
	Amount     int
	History    HistoryProvider
}

// Provider executes one settlement attempt. Implementations must be
// idempotent across their own internal retries.
type Provider interface {
	Settle(ctx context.Context, req SettleRequest) error
}
