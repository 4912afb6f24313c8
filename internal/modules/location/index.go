// README: Driver position index; Redis GEO in production, a map in memory.
package location

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"yatri/internal/types"
)

var ErrInvalidPoint = errors.New("invalid coordinates")

const driverGeoKey = "location:drivers"

// Hit is one indexed driver within a search radius.
type Hit struct {
	ID         types.ID
	DistanceKm float64
}

type Index interface {
	Set(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	// Nearby returns drivers within radiusKm of p, nearest first.
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Hit, error)
}

type MemoryIndex struct {
	mu     sync.RWMutex
	points map[types.ID]types.Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[types.ID]types.Point)}
}

func (m *MemoryIndex) Set(_ context.Context, id types.ID, p types.Point) error {
	if !p.Valid() {
		return ErrInvalidPoint
	}
	m.mu.Lock()
	m.points[id] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, id types.ID) error {
	m.mu.Lock()
	delete(m.points, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Nearby(_ context.Context, p types.Point, radiusKm float64) ([]Hit, error) {
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.points))
	for id, q := range m.points {
		if d := p.DistanceKm(q); d <= radiusKm {
			hits = append(hits, Hit{ID: id, DistanceKm: d})
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(hits, compareHits)
	return hits, nil
}

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{redis: client}
}

func (r *RedisIndex) Set(ctx context.Context, id types.ID, p types.Point) error {
	if !p.Valid() {
		return ErrInvalidPoint
	}
	return r.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, id types.ID) error {
	return r.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Hit, error) {
	results, err := r.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, res := range results {
		hits[i] = Hit{ID: types.ID(res.Name), DistanceKm: res.Dist}
	}
	return hits, nil
}
