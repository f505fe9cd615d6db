package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/coupon"
	"github.com/example/ride-dispatch/internal/models"
)

const userColumns = `id, username, firstname, lastname, date_of_birth, access_token,
	invitation_code, current_ride_id, ride_count, created_at, updated_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var currentRideID sql.NullString
	err := row.Scan(
		&u.ID, &u.Username, &u.Firstname, &u.Lastname, &u.DateOfBirth, &u.AccessToken,
		&u.InvitationCode, &currentRideID, &u.RideCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	if currentRideID.Valid {
		u.CurrentRideID = &currentRideID.String
	}
	return u, nil
}

// NewUser carries the registration fields for CreateUser.
type NewUser struct {
	Username       string
	Firstname      string
	Lastname       string
	DateOfBirth    string
	InvitationCode string
}

// CreateUser registers a rider, grants the signup coupon, and redeems the
// referrer's invitation code when one is supplied. The whole registration is
// one transaction so a failed redemption leaves no half-created account.
func (s *Store) CreateUser(ctx context.Context, in NewUser) (models.User, error) {
	var user models.User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		user = models.User{
			ID:             uuid.NewString(),
			Username:       in.Username,
			Firstname:      in.Firstname,
			Lastname:       in.Lastname,
			DateOfBirth:    in.DateOfBirth,
			AccessToken:    newToken(),
			InvitationCode: newShortToken(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, firstname, lastname, date_of_birth, access_token, invitation_code, ride_count, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)`,
			user.ID, in.Username, in.Firstname, in.Lastname, in.DateOfBirth,
			user.AccessToken, user.InvitationCode, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("username %s: %w", in.Username, ErrAlreadyExists)
		}
		if err != nil {
			return err
		}

		if err := coupon.IssueSignup(ctx, tx, user.ID); err != nil {
			return err
		}
		if in.InvitationCode != "" {
			if err := coupon.RedeemInvitation(ctx, tx, user.ID, in.InvitationCode); err != nil {
				return err
			}
		}
		return nil
	})
	return user, err
}

func (s *Store) UserByAccessToken(ctx context.Context, token string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE access_token = $1`, token)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

// RegisterPaymentToken stores or replaces the rider's payment token.
func (s *Store) RegisterPaymentToken(ctx context.Context, userID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_tokens (user_id, token, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token`,
		userID, token, time.Now())
	return err
}
