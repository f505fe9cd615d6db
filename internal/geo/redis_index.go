package geo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisIndex keeps the latest chair locations in a single Redis hash keyed
// by chair ID. Coordinates are abstract grid units, not degrees, so the GEO
// command family does not apply; distance filtering happens in-process.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(client *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: client, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, loc models.ChairLocation) error {
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, loc.ChairID, string(b)).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisIndex) Nearby(ctx context.Context, origin models.Coord, distance int) ([]models.ChairLocation, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]models.ChairLocation, 0, len(all))
	for _, raw := range all {
		var loc models.ChairLocation
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			continue
		}
		at := models.Coord{Latitude: loc.Latitude, Longitude: loc.Longitude}
		if Distance(origin, at) <= distance {
			out = append(out, loc)
		}
	}
	return out, nil
}
