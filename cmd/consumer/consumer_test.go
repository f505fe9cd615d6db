package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// fakeIndex fails Upsert a configured number of times before succeeding.
type fakeIndex struct {
	failures int
	calls    int
}

func (f *fakeIndex) Upsert(ctx context.Context, loc models.ChairLocation) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("index down")
	}
	return nil
}

func (f *fakeIndex) Nearby(ctx context.Context, origin models.Coord, distance int) ([]models.ChairLocation, error) {
	return nil, nil
}

func TestUpsertWithRetrySucceedsAfterRetries(t *testing.T) {
	f := &fakeIndex{failures: 2}
	loc := models.ChairLocation{ChairID: "c1", Latitude: 1, Longitude: 2}
	start := time.Now()
	if err := upsertWithRetry(context.Background(), f, loc, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpsertWithRetryFailsWhenExhausted(t *testing.T) {
	f := &fakeIndex{failures: 5}
	loc := models.ChairLocation{ChairID: "c1"}
	if err := upsertWithRetry(context.Background(), f, loc, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}
