package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
)

// DrainNotification pops the oldest status event not yet delivered to the
// given audience and marks it sent. When the log is fully drained it falls
// back to the ride's current status so pollers always see something.
//
// Draining COMPLETED releases the poller's side of the ride: the rider's
// active-ride slot on the app side, the chair's assignment on the chair
// side. A chair only becomes eligible for new work after its own poller
// has observed the completion.
func (s *Store) DrainNotification(ctx context.Context, rideID string, aud notify.Audience) (status string, drained bool, err error) {
	col := "app_sent_at"
	if aud == notify.AudienceChair {
		col = "chair_sent_at"
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var eventID int64
		row := tx.QueryRowContext(ctx,
			`SELECT id, status FROM ride_status_events
			 WHERE ride_id = $1 AND `+col+` IS NULL
			 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`, rideID)
		scanErr := row.Scan(&eventID, &status)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return tx.QueryRowContext(ctx, `SELECT status FROM rides WHERE id = $1`, rideID).Scan(&status)
		}
		if scanErr != nil {
			return scanErr
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE ride_status_events SET `+col+` = $1 WHERE id = $2`, now, eventID); err != nil {
			return err
		}
		drained = true

		if status != lifecycle.StatusCompleted {
			return nil
		}
		switch aud {
		case notify.AudienceApp:
			_, err := tx.ExecContext(ctx,
				`UPDATE users SET current_ride_id = NULL, ride_count = ride_count + 1, updated_at = $1
				 WHERE current_ride_id = $2`, now, rideID)
			return err
		case notify.AudienceChair:
			_, err := tx.ExecContext(ctx,
				`UPDATE chairs SET current_ride_id = NULL, updated_at = $1
				 WHERE current_ride_id = $2`, now, rideID)
			return err
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if drained {
		observability.NotificationsDrained.WithLabelValues(string(aud)).Inc()
	}
	return status, drained, nil
}
