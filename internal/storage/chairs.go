package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
)

const chairColumns = `id, owner_id, name, model, speed, is_active, access_token,
	latitude, longitude, total_distance, total_distance_updated_at,
	total_rides_count, total_evaluation, current_ride_id, created_at, updated_at`

func scanChair(row rowScanner) (models.Chair, error) {
	var c models.Chair
	var lat, lon sql.NullInt64
	var distUpdated sql.NullTime
	var currentRideID sql.NullString
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Model, &c.Speed, &c.IsActive, &c.AccessToken,
		&lat, &lon, &c.TotalDistance, &distUpdated,
		&c.TotalRidesCount, &c.TotalEvaluation, &currentRideID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return models.Chair{}, err
	}
	if lat.Valid && lon.Valid {
		c.Location = &models.Coord{Latitude: int(lat.Int64), Longitude: int(lon.Int64)}
	}
	if distUpdated.Valid {
		t := distUpdated.Time
		c.TotalDistanceUpdatedAt = &t
	}
	if currentRideID.Valid {
		c.CurrentRideID = &currentRideID.String
	}
	return c, nil
}

// CreateChair registers a chair under the owner holding the register token.
// Speed comes from the chair model catalog.
func (s *Store) CreateChair(ctx context.Context, name, model, registerToken string) (models.Chair, error) {
	var chair models.Chair
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var ownerID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM owners WHERE chair_register_token = $1`, registerToken).Scan(&ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chair register token: %w", ErrNotFound)
		}
		if err != nil {
			return err
		}

		var speed int
		err = tx.QueryRowContext(ctx, `SELECT speed FROM chair_models WHERE name = $1`, model).Scan(&speed)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chair model %s: %w", model, ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		chair = models.Chair{
			ID:          uuid.NewString(),
			OwnerID:     ownerID,
			Name:        name,
			Model:       model,
			Speed:       speed,
			AccessToken: newToken(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chairs (id, owner_id, name, model, speed, is_active, access_token, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $7)`,
			chair.ID, ownerID, name, model, speed, chair.AccessToken, now)
		return err
	})
	return chair, err
}

func (s *Store) SetChairActivity(ctx context.Context, chairID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chairs SET is_active = $1, updated_at = $2 WHERE id = $3`, active, time.Now(), chairID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chair %s: %w", chairID, ErrNotFound)
	}
	return nil
}

func (s *Store) ChairByAccessToken(ctx context.Context, token string) (models.Chair, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chairColumns+` FROM chairs WHERE access_token = $1`, token)
	c, err := scanChair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chair{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ChairByID(ctx context.Context, id string) (models.Chair, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chairColumns+` FROM chairs WHERE id = $1`, id)
	c, err := scanChair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chair{}, fmt.Errorf("chair %s: %w", id, ErrNotFound)
	}
	return c, err
}

// RecordCoordinate stores a chair's reported position, accumulates its
// odometer by the Manhattan delta, and applies any location-triggered ride
// transition (arrival at pickup while ENROUTE, at destination while
// CARRYING) in the same transaction, keeping position and ride status
// mutually consistent.
func (s *Store) RecordCoordinate(ctx context.Context, chairID string, at models.Coord) (time.Time, error) {
	var recordedAt time.Time
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+chairColumns+` FROM chairs WHERE id = $1 FOR UPDATE`, chairID)
		chair, err := scanChair(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("chair %s: %w", chairID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		delta := 0
		if chair.Location != nil {
			delta = geo.Distance(*chair.Location, at)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE chairs SET latitude = $1, longitude = $2, total_distance = total_distance + $3,
			 total_distance_updated_at = $4, updated_at = $4 WHERE id = $5`,
			at.Latitude, at.Longitude, delta, now, chairID); err != nil {
			return err
		}

		if chair.CurrentRideID != nil {
			rideRow := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, *chair.CurrentRideID)
			ride, err := scanRide(rideRow)
			if err != nil {
				return err
			}
			switch {
			case ride.Status == lifecycle.StatusEnroute && at == ride.Pickup:
				if err := applyTransition(ctx, tx, ride.ID, lifecycle.StatusPickup, now); err != nil {
					return err
				}
			case ride.Status == lifecycle.StatusCarrying && at == ride.Destination:
				if err := applyTransition(ctx, tx, ride.ID, lifecycle.StatusArrived, now); err != nil {
					return err
				}
			}
		}

		recordedAt = now
		return nil
	})
	return recordedAt, err
}

// FreeActiveChairs lists active unassigned chairs with a known location;
// the nearby-chairs fallback path filters them by distance in process.
func (s *Store) FreeActiveChairs(ctx context.Context) ([]models.Chair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chairColumns+` FROM chairs WHERE is_active = TRUE AND current_ride_id IS NULL AND latitude IS NOT NULL`)
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
