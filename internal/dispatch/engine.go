// Package dispatch pairs unmatched rides with idle chairs. The policy is a
// bounded greedy heuristic: oldest rides first into the batch, longest trip
// first within it, candidates ranked by estimated total time-to-serve.
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

// Store is the persistence surface the engine needs. AssignChair must set
// ride.chair_id and chair.current_ride_id atomically and report false when
// either row was taken by a concurrent pass.
type Store interface {
	UnmatchedRides(ctx context.Context, limit int) ([]models.Ride, error)
	IdleChairs(ctx context.Context, limit int) ([]models.Chair, error)
	AssignChair(ctx context.Context, rideID, chairID string) (bool, error)
}

// Notifier pushes an assignment to the chair out of band. Delivery is
// best-effort; the polling channel stays authoritative.
type Notifier interface {
	RideAssigned(chairID string, ride models.Ride)
}

type Engine struct {
	Store    Store
	Notifier Notifier
	Logger   *slog.Logger

	RideBatch         int     // unmatched rides considered per pass
	ChairPool         int     // idle chairs fetched per ride
	LocalityThreshold int     // pickup distance beyond this is "another town"
	PatienceThreshold float64 // acceptable (pickup+trip)/speed
	GracePeriod       time.Duration

	now func() time.Time
}

type candidate struct {
	chair          models.Chair
	pickupDistance int
	timeToServe    float64
}

// rankCandidates orders chairs by estimated total time-to-serve, ties broken
// by the shorter pickup leg. Chairs without a known location are dropped.
func rankCandidates(ride models.Ride, chairs []models.Chair) []candidate {
	rideDistance := geo.Distance(ride.Pickup, ride.Destination)
	out := make([]candidate, 0, len(chairs))
	for _, ch := range chairs {
		if ch.Location == nil || ch.Speed <= 0 {
			continue
		}
		pd := geo.Distance(ride.Pickup, *ch.Location)
		out = append(out, candidate{
			chair:          ch,
			pickupDistance: pd,
			timeToServe:    float64(pd+rideDistance) / float64(ch.Speed),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].timeToServe != out[j].timeToServe {
			return out[i].timeToServe < out[j].timeToServe
		}
		return out[i].pickupDistance < out[j].pickupDistance
	})
	return out
}

// pick walks the ranked list and returns the first acceptable candidate.
// Distant chairs are never acceptable. Slow matches are held back until the
// ride has waited out the grace period, which prevents starvation.
func (e *Engine) pick(ride models.Ride, ranked []candidate, taken map[string]bool, now time.Time) *candidate {
	overdue := now.Sub(ride.CreatedAt) >= e.GracePeriod
	for i := range ranked {
		c := &ranked[i]
		if taken[c.chair.ID] {
			continue
		}
		if c.pickupDistance > e.LocalityThreshold {
			continue
		}
		if c.timeToServe > e.PatienceThreshold && !overdue {
			continue
		}
		return c
	}
	return nil
}

// RunOnce executes one dispatch pass and returns the number of assignments.
// A ride left unmatched carries no lease; the next pass reconsiders it.
func (e *Engine) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	now := start
	if e.now != nil {
		now = e.now()
	}

	rides, err := e.Store.UnmatchedRides(ctx, e.RideBatch)
	if err != nil {
		return 0, err
	}
	// Longest trip first: giving long trips first pick of the pool puts fast
	// chairs on the rides where speed buys the most carrying time.
	sort.SliceStable(rides, func(i, j int) bool {
		return geo.Distance(rides[i].Pickup, rides[i].Destination) > geo.Distance(rides[j].Pickup, rides[j].Destination)
	})

	assigned := 0
	taken := make(map[string]bool)
	for _, ride := range rides {
		chairs, err := e.Store.IdleChairs(ctx, e.ChairPool)
		if err != nil {
			return assigned, err
		}
		c := e.pick(ride, rankCandidates(ride, chairs), taken, now)
		if c == nil {
			continue
		}
		ok, err := e.Store.AssignChair(ctx, ride.ID, c.chair.ID)
		if err != nil {
			return assigned, err
		}
		if !ok {
			// a concurrent pass won the row; the ride stays for the next pass
			observability.MatchesLostRace.Inc()
			continue
		}
		taken[c.chair.ID] = true
		assigned++
		observability.MatchesTotal.Inc()
		if e.Notifier != nil {
			e.Notifier.RideAssigned(c.chair.ID, ride)
		}
		if e.Logger != nil {
			e.Logger.Info("ride matched",
				"ride_id", ride.ID,
				"chair_id", c.chair.ID,
				"pickup_distance", c.pickupDistance,
				"time_to_serve", c.timeToServe,
			)
		}
	}

	observability.MatchPassTotal.Inc()
	observability.MatchPassSize.Observe(float64(assigned))
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	return assigned, nil
}

// Run drives RunOnce on a fixed cadence until the context ends.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil && e.Logger != nil {
				e.Logger.Error("dispatch pass failed", "error", err)
			}
		}
	}
}
