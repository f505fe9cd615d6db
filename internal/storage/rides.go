package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/coupon"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/payment"
)

const rideColumns = `id, user_id, chair_id, pickup_latitude, pickup_longitude,
	destination_latitude, destination_longitude, fare, evaluation, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (models.Ride, error) {
	var r models.Ride
	var chairID sql.NullString
	var evaluation sql.NullInt64
	err := row.Scan(
		&r.ID, &r.UserID, &chairID,
		&r.Pickup.Latitude, &r.Pickup.Longitude,
		&r.Destination.Latitude, &r.Destination.Longitude,
		&r.Fare, &evaluation, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return models.Ride{}, err
	}
	if chairID.Valid {
		r.ChairID = &chairID.String
	}
	if evaluation.Valid {
		v := int(evaluation.Int64)
		r.Evaluation = &v
	}
	return r, nil
}

// CreateRide opens a ride in MATCHING, consumes a coupon per the allocator
// policy, freezes the discounted fare, and claims the rider's single
// active-ride slot. Everything happens in one transaction; the user row is
// locked first so two concurrent requests cannot both pass the active-ride
// check.
func (s *Store) CreateRide(ctx context.Context, userID string, pickup, dest models.Coord) (models.Ride, error) {
	var ride models.Ride
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var currentRideID sql.NullString
		var rideCount int
		err := tx.QueryRowContext(ctx,
			`SELECT current_ride_id, ride_count FROM users WHERE id = $1 FOR UPDATE`, userID).
			Scan(&currentRideID, &rideCount)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if currentRideID.Valid {
			return ErrActiveRide
		}

		id := uuid.NewString()
		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rides (id, user_id, pickup_latitude, pickup_longitude, destination_latitude, destination_longitude, fare, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $8)`,
			id, userID, pickup.Latitude, pickup.Longitude, dest.Latitude, dest.Longitude,
			lifecycle.StatusMatching, now); err != nil {
			return fmt.Errorf("insert ride: %w", err)
		}
		if err := appendStatusEvent(ctx, tx, id, lifecycle.StatusMatching, now); err != nil {
			return err
		}

		discount, err := coupon.AllocateForRide(ctx, tx, userID, id, rideCount == 0)
		if err != nil {
			return err
		}
		fare := geo.DiscountedFare(pickup, dest, discount)
		if _, err := tx.ExecContext(ctx, `UPDATE rides SET fare = $1 WHERE id = $2`, fare, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET current_ride_id = $1, updated_at = $2 WHERE id = $3`, id, now, userID); err != nil {
			return err
		}

		ride = models.Ride{
			ID: id, UserID: userID,
			Pickup: pickup, Destination: dest,
			Fare: fare, Status: lifecycle.StatusMatching,
			CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	return ride, err
}

func (s *Store) RideByID(ctx context.Context, id string) (models.Ride, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ride{}, fmt.Errorf("ride %s: %w", id, ErrNotFound)
	}
	return r, err
}

// EstimateFare previews the fare and discount for a would-be ride without
// consuming anything.
func (s *Store) EstimateFare(ctx context.Context, userID string, pickup, dest models.Coord) (fare, discount int, err error) {
	var rideCount int
	err = s.db.QueryRowContext(ctx, `SELECT ride_count FROM users WHERE id = $1`, userID).Scan(&rideCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, err
	}
	d, err := coupon.PreviewDiscount(ctx, s.db, userID, rideCount == 0)
	if err != nil {
		return 0, 0, err
	}
	fare = geo.DiscountedFare(pickup, dest, d)
	discount = geo.Fare(pickup, dest) - fare
	return fare, discount, nil
}

// ChairStatusUpdate applies a chair-triggered transition: ENROUTE when the
// chair acknowledges its assignment, CARRYING when it reports the rider
// picked up. Out-of-sequence attempts are rejected without mutation.
func (s *Store) ChairStatusUpdate(ctx context.Context, chairID, rideID, target string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID)
		ride, err := scanRide(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ride %s: %w", rideID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if ride.ChairID == nil || *ride.ChairID != chairID {
			return ErrNotAssigned
		}
		if err := lifecycle.Validate(ride.Status, target); err != nil {
			return err
		}
		return applyTransition(ctx, tx, rideID, target, time.Now())
	})
}

// EvaluateRide settles the fare and completes the ride. Settlement runs
// strictly before the COMPLETED transition: a failed settlement rolls back
// with the ride still in ARRIVED, safe to retry with the same user action.
func (s *Store) EvaluateRide(ctx context.Context, rideID string, evaluation int, settle SettleFunc) (time.Time, error) {
	var completedAt time.Time
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID)
		ride, err := scanRide(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ride %s: %w", rideID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(ride.Status, lifecycle.StatusCompleted); err != nil {
			return err
		}

		var token string
		err = tx.QueryRowContext(ctx, `SELECT token FROM payment_tokens WHERE user_id = $1`, ride.UserID).Scan(&token)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPaymentTokenMissing
		}
		if err != nil {
			return err
		}

		gatewayURL, err := s.paymentGatewayURL(ctx, tx)
		if err != nil {
			return err
		}
		history := func(ctx context.Context) ([]models.Ride, error) {
			return ridesByUserAsc(ctx, tx, ride.UserID)
		}
		if err := settle(ctx, gatewayURL, token, ride.Fare, history); err != nil {
			return err
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE rides SET evaluation = $1, status = $2, updated_at = $3 WHERE id = $4`,
			evaluation, lifecycle.StatusCompleted, now, rideID); err != nil {
			return err
		}
		if err := appendStatusEvent(ctx, tx, rideID, lifecycle.StatusCompleted, now); err != nil {
			return err
		}
		if ride.ChairID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE chairs SET total_rides_count = total_rides_count + 1, total_evaluation = total_evaluation + $1, updated_at = $2 WHERE id = $3`,
				evaluation, now, *ride.ChairID); err != nil {
				return err
			}
		}
		completedAt = now
		return nil
	})
	return completedAt, err
}

// SettleFunc executes one settlement attempt against the configured
// payment provider.
type SettleFunc func(ctx context.Context, gatewayURL, token string, amount int, history payment.HistoryProvider) error

// RideHistoryAsc is the rider's full chronological ride history, used by
// the payment gateway's reconciliation path.
func (s *Store) RideHistoryAsc(ctx context.Context, userID string) ([]models.Ride, error) {
	return ridesByUserAsc(ctx, s.db, userID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func ridesByUserAsc(ctx context.Context, q queryer, userID string) ([]models.Ride, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompletedRide is one row of a rider's trip history with the serving
// chair denormalized for display.
type CompletedRide struct {
	Ride       models.Ride
	ChairID    string
	ChairName  string
	ChairModel string
	OwnerName  string
}

func (s *Store) CompletedRidesByUser(ctx context.Context, userID string) ([]CompletedRide, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.chair_id, r.pickup_latitude, r.pickup_longitude,
		       r.destination_latitude, r.destination_longitude, r.fare, r.evaluation, r.status, r.created_at, r.updated_at,
		       c.id, c.name, c.model, o.name
		FROM rides r
		JOIN chairs c ON c.id = r.chair_id
		JOIN owners o ON o.id = c.owner_id
		WHERE r.user_id = $1 AND r.status = $2
		ORDER BY r.created_at DESC`, userID, lifecycle.StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CompletedRide
	for rows.Next() {
		var cr CompletedRide
		var chairID sql.NullString
		var evaluation sql.NullInt64
		r := &cr.Ride
		if err := rows.Scan(
			&r.ID, &r.UserID, &chairID,
			&r.Pickup.Latitude, &r.Pickup.Longitude,
			&r.Destination.Latitude, &r.Destination.Longitude,
			&r.Fare, &evaluation, &r.Status, &r.CreatedAt, &r.UpdatedAt,
			&cr.ChairID, &cr.ChairName, &cr.ChairModel, &cr.OwnerName,
		); err != nil {
			return nil, err
		}
		if chairID.Valid {
			r.ChairID = &chairID.String
		}
		if evaluation.Valid {
			v := int(evaluation.Int64)
			r.Evaluation = &v
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// applyTransition updates the ride's status column and appends the event
// row in the caller's transaction, so the log and the column never diverge.
func applyTransition(ctx context.Context, tx *sql.Tx, rideID, status string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE rides SET status = $1, updated_at = $2 WHERE id = $3`, status, now, rideID); err != nil {
		return err
	}
	return appendStatusEvent(ctx, tx, rideID, status, now)
}

func appendStatusEvent(ctx context.Context, tx *sql.Tx, rideID, status string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ride_status_events (ride_id, status, created_at) VALUES ($1, $2, $3)`,
		rideID, status, now)
	if err != nil {
		return fmt.Errorf("append status event: %w", err)
	}
	return nil
}

func (s *Store) paymentGatewayURL(ctx context.Context, tx *sql.Tx) (string, error) {
	var url string
	err := tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = 'payment_gateway_url'`).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		if s.DefaultGatewayURL != "" {
			return s.DefaultGatewayURL, nil
		}
		return "", fmt.Errorf("payment gateway url setting: %w", ErrNotFound)
	}
	return url, err
}
