// README: Matching service keeps the driver directory and ranks candidates for a pickup.
package matching

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"yatri/internal/config"
	"yatri/internal/modules/location"
	"yatri/internal/modules/ward"
	"yatri/internal/types"
)

type Service struct {
	store  Store
	index  location.Index
	graph  *ward.Graph
	ranker Ranker
	cfg    config.MatchingConfig
	log    zerolog.Logger
}

func NewService(store Store, index location.Index, graph *ward.Graph, cfg config.MatchingConfig, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		index:  index,
		graph:  graph,
		ranker: NewRanker(cfg),
		cfg:    cfg,
		log:    log.With().Str("module", "matching").Logger(),
	}
}

// Query describes one ranking request.
type Query struct {
	Pickup types.Point
	Peak   bool
	// Exclude drops drivers, e.g. those already holding a ride.
	Exclude map[types.ID]bool
	// Ward restricts candidates to drivers whose primary ward or current ward
	// matches. The radius does not apply in this mode.
	Ward string
}

func (s *Service) Register(ctx context.Context, d Driver) (Driver, error) {
	if err := d.Validate(); err != nil {
		return Driver{}, err
	}
	if d.PrimaryWard != "" && s.graph != nil && !s.graph.Has(d.PrimaryWard) {
		return Driver{}, fmt.Errorf("%w: unknown primary ward %s", ErrInvalidDriver, d.PrimaryWard)
	}
	if err := s.store.Upsert(ctx, d); err != nil {
		return Driver{}, err
	}
	if err := s.syncIndex(ctx, d); err != nil {
		return Driver{}, err
	}
	return s.store.Get(ctx, d.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Driver, error) {
	return s.store.List(ctx)
}

// SetAvailability is the driver's own online/offline toggle.
func (s *Service) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	if err := s.store.SetAvailability(ctx, id, available); err != nil {
		return err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	s.log.Debug().Str("driver_id", id.String()).Bool("available", available).Msg("availability changed")
	return s.syncIndex(ctx, d)
}

func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if !p.Valid() {
		return location.ErrInvalidPoint
	}
	if err := s.store.UpdateLocation(ctx, id, p); err != nil {
		return err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.syncIndex(ctx, d)
}

func (s *Service) syncIndex(ctx context.Context, d Driver) error {
	if s.index == nil {
		return nil
	}
	if d.Available {
		return s.index.Set(ctx, d.ID, d.Location)
	}
	return s.index.Remove(ctx, d.ID)
}

// SeedIndex loads every available driver with a known position into the
// index, so a fresh process can match drivers persisted before it started.
func (s *Service) SeedIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	drivers, err := s.store.ListAvailable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list available drivers: %w", err)
	}
	n := 0
	for _, d := range drivers {
		if !d.Location.Valid() {
			continue
		}
		if err := s.index.Set(ctx, d.ID, d.Location); err != nil {
			return n, fmt.Errorf("index driver %s: %w", d.ID, err)
		}
		n++
	}
	s.log.Info().Int("drivers", n).Msg("location index seeded")
	return n, nil
}

// Candidates returns available drivers eligible for q, before scoring.
func (s *Service) Candidates(ctx context.Context, q Query) ([]Driver, error) {
	var drivers []Driver
	var err error
	switch {
	case q.Ward != "":
		drivers, err = s.wardDrivers(ctx, q.Ward)
	case s.index != nil:
		var hits []location.Hit
		hits, err = s.index.Nearby(ctx, q.Pickup, s.cfg.RadiusKm)
		if err != nil {
			return nil, fmt.Errorf("nearby drivers: %w", err)
		}
		ids := make([]types.ID, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		drivers, err = s.store.ListByIDs(ctx, ids)
	default:
		drivers, err = s.store.ListAvailable(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := drivers[:0]
	for _, d := range drivers {
		if d.Available && !q.Exclude[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) wardDrivers(ctx context.Context, wardID string) ([]Driver, error) {
	all, err := s.store.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	var out []Driver
	for _, d := range all {
		if d.PrimaryWard == wardID || (s.graph != nil && s.graph.Locate(d.Location) == wardID) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Rank returns eligible drivers best first. An empty slice means nobody is eligible.
func (s *Service) Rank(ctx context.Context, q Query) ([]Ranked, error) {
	candidates, err := s.Candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	ranker := s.ranker
	if q.Ward != "" {
		ranker = ranker.WithRadius(math.Inf(1))
	}
	ranked := ranker.Rank(q.Pickup, candidates, q.Peak)
	s.log.Debug().
		Int("candidates", len(candidates)).
		Int("ranked", len(ranked)).
		Bool("peak", q.Peak).
		Str("ward", q.Ward).
		Msg("drivers ranked")
	return ranked, nil
}
