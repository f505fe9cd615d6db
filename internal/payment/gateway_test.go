package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func emptyHistory(ctx context.Context) ([]models.Ride, error) {
	return nil, nil
}

func TestSettleSuccess(t *testing.T) {
	var posts int
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		posts++
		key = r.Header.Get("Idempotency-Key")
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		var body struct {
			Amount int `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Amount != 1500 {
			t.Errorf("amount = %d, want 1500", body.Amount)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewGatewayClient(time.Second)
	err := c.Settle(context.Background(), SettleRequest{GatewayURL: srv.URL, Token: "tok-1", Amount: 1500, History: emptyHistory})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if posts != 1 {
		t.Fatalf("posts = %d, want 1", posts)
	}
	if key == "" {
		t.Fatal("idempotency key header was empty")
	}
}

func TestSettleRetriesThenSucceeds(t *testing.T) {
	var posts int
	keys := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts++
			keys[r.Header.Get("Idempotency-Key")] = true
			if posts < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			// reconciliation probe: report one payment against an empty
			// ride history so it stays inconclusive
			_ = json.NewEncoder(w).Encode([]gatewayPayment{{Amount: 1, Status: "ok"}})
		}
	}))
	defer srv.Close()

	c := NewGatewayClient(time.Second)
	c.Backoff = time.Millisecond
	err := c.Settle(context.Background(), SettleRequest{GatewayURL: srv.URL, Token: "t", Amount: 100, History: emptyHistory})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if posts != 3 {
		t.Fatalf("posts = %d, want 3", posts)
	}
	if len(keys) != 1 {
		t.Fatalf("idempotency key changed across retries of one attempt: %v", keys)
	}
}

func TestSettleExhaustsRetries(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts++
			w.WriteHeader(http.StatusBadGateway)
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]gatewayPayment{{Amount: 1, Status: "ok"}})
		}
	}))
	defer srv.Close()

	c := NewGatewayClient(time.Second)
	c.Backoff = time.Millisecond
	err := c.Settle(context.Background(), SettleRequest{GatewayURL: srv.URL, Token: "t", Amount: 100, History: emptyHistory})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if posts != 6 { // first request plus five retries
		t.Fatalf("posts = %d, want 6", posts)
	}
}

func TestSettleReconcilesUnacknowledgedCharge(t *testing.T) {
	var posts int
	history := func(ctx context.Context) ([]models.Ride, error) {
		return []models.Ride{{ID: "r1"}, {ID: "r2"}}, nil
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			// the charge lands but the acknowledgement is lost
			posts++
			w.WriteHeader(http.StatusInternalServerError)
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]gatewayPayment{{Amount: 1}, {Amount: 2}})
		}
	}))
	defer srv.Close()

	c := NewGatewayClient(time.Second)
	c.Backoff = time.Millisecond
	err := c.Settle(context.Background(), SettleRequest{GatewayURL: srv.URL, Token: "t", Amount: 100, History: history})
	if err != nil {
		t.Fatalf("expected reconciliation to succeed, got %v", err)
	}
	if posts != 1 {
		t.Fatalf("posts = %d, want 1 (no re-charge after reconciliation)", posts)
	}
}
