package geo

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// ChairIndex is the minimal interface the nearby-chairs listing needs. The
// index only mirrors the latest reported location per chair; the store stays
// authoritative.
type ChairIndex interface {
	Upsert(ctx context.Context, loc models.ChairLocation) error
	Nearby(ctx context.Context, origin models.Coord, distance int) ([]models.ChairLocation, error)
}

// Index is the in-process fallback used when Redis is not configured.
type Index struct {
	mu     sync.RWMutex
	chairs map[string]models.ChairLocation
}

func NewIndex() *Index {
	return &Index{chairs: make(map[string]models.ChairLocation)}
}

func (g *Index) Upsert(_ context.Context, loc models.ChairLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chairs[loc.ChairID] = loc
	return nil
}

func (g *Index) Nearby(_ context.Context, origin models.Coord, distance int) ([]models.ChairLocation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.ChairLocation, 0, len(g.chairs))
	for _, loc := range g.chairs {
		at := models.Coord{Latitude: loc.Latitude, Longitude: loc.Longitude}
		if Distance(origin, at) <= distance {
			out = append(out, loc)
		}
	}
	return out, nil
}
