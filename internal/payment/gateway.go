package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/observability"
)

const (
	defaultRetries = 5
	defaultBackoff = 100 * time.Millisecond
)

// GatewayClient talks to the in-house payment gateway: POST /payments with
// bearer auth and an Idempotency-Key header, success is 204. One
// idempotency key covers one logical settlement attempt, so internal
// retries can never double-charge.
type GatewayClient struct {
	HTTPClient *http.Client
	Retries    int           // retries after the first request
	Backoff    time.Duration // fixed sleep between requests

	// newKey is swappable for tests.
	newKey func() string
}

func NewGatewayClient(timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		HTTPClient: &http.Client{Timeout: timeout},
		Retries:    defaultRetries,
		Backoff:    defaultBackoff,
	}
}

type postPaymentRequest struct {
	Amount int `json:"amount"`
}

type gatewayPayment struct {
	Amount int    `json:"amount"`
	Status string `json:"status"`
}

func (c *GatewayClient) Settle(ctx context.Context, req SettleRequest) error {
	keyFn := c.newKey
	if keyFn == nil {
		keyFn = uuid.NewString
	}
	idempotencyKey := keyFn()

	body, err := json.Marshal(postPaymentRequest{Amount: req.Amount})
	if err != nil {
		return err
	}

	retries := c.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	for attempt := 0; ; attempt++ {
		observability.PaymentAttempts.Inc()
		ok, err := c.postPayment(ctx, req, idempotencyKey, body)
		if err == nil && ok {
			return nil
		}

		// The gateway may have processed a request it never acknowledged.
		// Before burning a retry, compare its payment count against the
		// rider's full ride history; an equal count means the charge
		// already landed.
		if settled, recErr := c.reconcile(ctx, req); recErr == nil && settled {
			return nil
		}

		if attempt >= retries {
			observability.PaymentFailures.Inc()
			if err != nil {
				return fmt.Errorf("payment gateway: %v: %w", err, ErrUpstream)
			}
			return fmt.Errorf("payment gateway: retries exhausted: %w", ErrUpstream)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *GatewayClient) postPayment(ctx context.Context, req SettleRequest, key string, body []byte) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.GatewayURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Idempotency-Key", key)

	res, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	return res.StatusCode == http.StatusNoContent, nil
}

func (c *GatewayClient) reconcile(ctx context.Context, req SettleRequest) (bool, error) {
	if req.History == nil {
		return false, nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.GatewayURL+"/payments", nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)

	res, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return false, fmt.Errorf("gateway payment list: unexpected status %d", res.StatusCode)
	}

	var payments []gatewayPayment
	if err := json.NewDecoder(res.Body).Decode(&payments); err != nil {
		return false, err
	}
	rides, err := req.History(ctx)
	if err != nil {
		return false, err
	}
	return len(payments) == len(rides), nil
}
