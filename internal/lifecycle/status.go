// Package lifecycle defines the ride status sequence and its transition
// rules. Statuses advance strictly monotonically; persistence of a
// transition (ride row update plus event append) belongs to the store.
package lifecycle

import "errors"

const (
	StatusMatching  = "MATCHING"
	StatusEnroute   = "ENROUTE"
	StatusPickup    = "PICKUP"
	StatusCarrying  = "CARRYING"
	StatusArrived   = "ARRIVED"
	StatusCompleted = "COMPLETED"

	// StatusCanceled is reserved; nothing reaches it in the normal flow.
	StatusCanceled = "CANCELED"
)

var ErrInvalidTransition = errors.New("invalid ride status transition")

// rank orders the normal-flow statuses. CANCELED is deliberately absent.
var rank = map[string]int{
	StatusMatching:  0,
	StatusEnroute:   1,
	StatusPickup:    2,
	StatusCarrying:  3,
	StatusArrived:   4,
	StatusCompleted: 5,
}

// Known reports whether s is a normal-flow status.
func Known(s string) bool {
	_, ok := rank[s]
	return ok
}

// Terminal reports whether s ends the ride.
func Terminal(s string) bool {
	return s == StatusCompleted
}

// CanTransition reports whether from→to is the single allowed next step.
// No status may be skipped or revisited.
func CanTransition(from, to string) bool {
	f, ok := rank[from]
	if !ok {
		return false
	}
	t, ok := rank[to]
	if !ok {
		return false
	}
	return t == f+1
}

// Validate returns ErrInvalidTransition unless the transition is allowed.
func Validate(from, to string) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}
