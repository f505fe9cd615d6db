// Package notify computes the polling schedule hints for the two
// notification audiences. Draining itself is transactional and lives in the
// store; this package is pure so the derivation is repeatable for a given
// (status, chair, ride) input.
package notify

import (
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
)

// Audience identifies which poller is draining a ride's event queue.
type Audience string

const (
	AudienceApp   Audience = "app"
	AudienceChair Audience = "chair"
)

const (
	// DefaultRetryAfter is the fixed floor for most states.
	DefaultRetryAfter = 500 * time.Millisecond
	// NoRideRetryAfterApp is the hint when a rider has no active ride;
	// polling runs continuously with no ride present most of the time.
	NoRideRetryAfterApp   = 800 * time.Millisecond
	NoRideRetryAfterChair = 500 * time.Millisecond

	minETARetryAfter = 100 * time.Millisecond
)

// RetryAfter derives the minimum viable re-poll delay. While the chair is
// moving (ENROUTE toward pickup, CARRYING toward destination) the hint backs
// off to the ETA, distance over chair speed; every other state uses the
// fixed floor. The hint is scheduling advice, not a guarantee.
func RetryAfter(aud Audience, status string, chair *models.Chair, ride models.Ride) time.Duration {
	if aud != AudienceChair || chair == nil || chair.Location == nil || chair.Speed <= 0 {
		return DefaultRetryAfter
	}
	var target models.Coord
	switch status {
	case lifecycle.StatusEnroute:
		target = ride.Pickup
	case lifecycle.StatusCarrying:
		target = ride.Destination
	default:
		return DefaultRetryAfter
	}
	eta := time.Duration(geo.Distance(*chair.Location, target)) * time.Second / time.Duration(chair.Speed)
	if eta < minETARetryAfter {
		return minETARetryAfter
	}
	return eta
}
