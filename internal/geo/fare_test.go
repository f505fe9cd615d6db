package geo

import (
	"context"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b models.Coord
		want int
	}{
		{models.Coord{Latitude: 0, Longitude: 0}, models.Coord{Latitude: 0, Longitude: 0}, 0},
		{models.Coord{Latitude: 0, Longitude: 0}, models.Coord{Latitude: 0, Longitude: 10}, 10},
		{models.Coord{Latitude: -3, Longitude: 4}, models.Coord{Latitude: 2, Longitude: -1}, 10},
		{models.Coord{Latitude: 5, Longitude: 5}, models.Coord{Latitude: 1, Longitude: 9}, 8},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b); got != c.want {
			t.Errorf("Distance(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestFare(t *testing.T) {
	got := Fare(models.Coord{Latitude: 0, Longitude: 0}, models.Coord{Latitude: 0, Longitude: 10})
	if got != 1500 {
		t.Fatalf("fare = %d, want 1500", got)
	}
}

func TestDiscountedFare(t *testing.T) {
	// discount applies to the metered portion only; the initial fare survives
	// even when the discount exceeds the metered fare
	got := DiscountedFare(models.Coord{Latitude: 0, Longitude: 0}, models.Coord{Latitude: 0, Longitude: 10}, 3000)
	if got != 500 {
		t.Fatalf("discounted fare = %d, want 500", got)
	}
	if got := DiscountedFare(models.Coord{Latitude: 0, Longitude: 0}, models.Coord{Latitude: 0, Longitude: 10}, 200); got != 1300 {
		t.Fatalf("discounted fare = %d, want 1300", got)
	}
	if got := DiscountedFare(models.Coord{Latitude: 0, Longitude: 0}, models.Coord{Latitude: 0, Longitude: 10}, 0); got != 1500 {
		t.Fatalf("discounted fare = %d, want 1500", got)
	}
}

func TestIndexNearby(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	_ = idx.Upsert(ctx, models.ChairLocation{ChairID: "near", Latitude: 3, Longitude: 4})
	_ = idx.Upsert(ctx, models.ChairLocation{ChairID: "far", Latitude: 100, Longitude: 100})
	_ = idx.Upsert(ctx, models.ChairLocation{ChairID: "moved", Latitude: 90, Longitude: 90})
	_ = idx.Upsert(ctx, models.ChairLocation{ChairID: "moved", Latitude: 1, Longitude: 1})

	got, err := idx.Nearby(ctx, models.Coord{Latitude: 0, Longitude: 0}, 50)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, loc := range got {
		ids[loc.ChairID] = true
	}
	if !ids["near"] || !ids["moved"] || ids["far"] {
		t.Fatalf("unexpected nearby set: %v", ids)
	}
}
