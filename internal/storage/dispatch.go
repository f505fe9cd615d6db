package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
)

var errLostRace = errors.New("assignment lost race")

// UnmatchedRides returns the oldest rides still waiting for a chair.
func (s *Store) UnmatchedRides(ctx context.Context, limit int) ([]models.Ride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides
		 WHERE chair_id IS NULL AND status = $1
		 ORDER BY created_at ASC LIMIT $2`, lifecycle.StatusMatching, limit)
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

// IdleChairs returns located, active, unassigned chairs, fastest first.
func (s *Store) IdleChairs(ctx context.Context, limit int) ([]models.Chair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chairColumns+` FROM chairs
		 WHERE is_active = TRUE AND current_ride_id IS NULL AND latitude IS NOT NULL
		 ORDER BY speed DESC LIMIT $1`, limit)
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

// AssignChair pairs a ride with a chair. Both conditional updates must land
// on exactly one row; otherwise a concurrent pass already claimed one side
// and the whole assignment rolls back, reported as a lost race rather than
// an error.
func (s *Store) AssignChair(ctx context.Context, rideID, chairID string) (bool, error) {
	won := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		res, err := tx.ExecContext(ctx,
			`UPDATE rides SET chair_id = $1, updated_at = $2 WHERE id = $3 AND chair_id IS NULL`,
			chairID, now, rideID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return errLostRace
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE chairs SET current_ride_id = $1, updated_at = $2 WHERE id = $3 AND current_ride_id IS NULL`,
			rideID, now, chairID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return errLostRace
		}
		won = true
		return nil
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	return won, err
}
