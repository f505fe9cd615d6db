package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/models"
)

// CreateOwner registers a chair operator and mints both its API access
// token and the register token its chairs enroll with.
func (s *Store) CreateOwner(ctx context.Context, name string) (models.Owner, error) {
	now := time.Now()
	owner := models.Owner{
		ID:                 uuid.NewString(),
		Name:               name,
		AccessToken:        newToken(),
		ChairRegisterToken: newToken(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (id, name, access_token, chair_register_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		owner.ID, name, owner.AccessToken, owner.ChairRegisterToken, now)
	if isUniqueViolation(err) {
		return models.Owner{}, fmt.Errorf("owner %s: %w", name, ErrAlreadyExists)
	}
	if err != nil {
		return models.Owner{}, err
	}
	return owner, nil
}

func (s *Store) OwnerByAccessToken(ctx context.Context, token string) (models.Owner, error) {
	var o models.Owner
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, access_token, chair_register_token, created_at, updated_at FROM owners WHERE access_token = $1`, token).
		Scan(&o.ID, &o.Name, &o.AccessToken, &o.ChairRegisterToken, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Owner{}, ErrNotFound
	}
	return o, err
}

// OwnerChairs lists an operator's fleet, most recently registered first.
func (s *Store) OwnerChairs(ctx context.Context, ownerID string) ([]models.Chair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chairColumns+` FROM chairs WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Chair
	for rows.Next() {
		c, err := scanChair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

