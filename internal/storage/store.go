// Package storage is the Postgres persistence layer. The store is the only
// synchronization point in the system: every multi-step mutation runs in a
// transaction here, with row locks where two writers could collide.
package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrActiveRide          = errors.New("rider already has an active ride")
	ErrNotAssigned         = errors.New("chair is not assigned to this ride")
	ErrPaymentTokenMissing = errors.New("payment token not registered")
)

type Store struct {
	db *sql.DB

	// DefaultGatewayURL is used when the settings table carries no
	// payment_gateway_url row.
	DefaultGatewayURL string
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// inTx runs fn in a transaction; any error rolls everything back so no
// partial mutation is ever visible.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func newToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func newShortToken() string {
	b := make([]byte, 15)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
