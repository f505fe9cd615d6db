package geo

import "github.com/example/ride-dispatch/internal/models"

// Fare constants, fixed system-wide.
const (
	InitialFare     = 500
	FarePerDistance = 100
)

// Distance returns the Manhattan distance between two grid coordinates.
func Distance(a, b models.Coord) int {
	return abs(a.Latitude-b.Latitude) + abs(a.Longitude-b.Longitude)
}

// Fare is the undiscounted fare for a trip: the flat initial fare plus the
// metered portion.
func Fare(pickup, dest models.Coord) int {
	return InitialFare + FarePerDistance*Distance(pickup, dest)
}

// DiscountedFare applies a coupon discount to the metered portion only; the
// initial fare is never discounted and the result is never negative.
func DiscountedFare(pickup, dest models.Coord, discount int) int {
	metered := FarePerDistance*Distance(pickup, dest) - discount
	if metered < 0 {
		metered = 0
	}
	return InitialFare + metered
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
