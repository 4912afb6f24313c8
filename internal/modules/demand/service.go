// README: Demand service records requests and classifies peak hours and wards.
package demand

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"yatri/internal/config"
	"yatri/internal/modules/ward"
	"yatri/internal/types"
)

type Service struct {
	store Store
	graph *ward.Graph
	cfg   config.DemandConfig
	loc   *time.Location
	log   zerolog.Logger
}

func NewService(store Store, graph *ward.Graph, cfg config.DemandConfig, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, graph: graph, cfg: cfg, loc: loc, log: log.With().Str("module", "demand").Logger()}
}

func (s *Service) Graph() *ward.Graph {
	return s.graph
}

func (s *Service) RecordRequest(ctx context.Context, wardID string, hour int) error {
	if hour < 0 || hour > 23 {
		return ErrInvalidHour
	}
	if !s.graph.Has(wardID) {
		return fmt.Errorf("%w: %s", ErrUnknownWard, wardID)
	}
	if err := s.store.Increment(ctx, wardID, hour); err != nil {
		return fmt.Errorf("increment demand: %w", err)
	}
	return nil
}

// RecordAt attributes a request at p to the nearest ward, bucketed by local hour.
func (s *Service) RecordAt(ctx context.Context, p types.Point, at time.Time) (string, error) {
	wardID := s.graph.Locate(p)
	return wardID, s.RecordRequest(ctx, wardID, at.In(s.loc).Hour())
}

// Ward returns the ward whose centroid is nearest to p.
func (s *Service) Ward(p types.Point) string {
	return s.graph.Locate(p)
}

// Hour returns the demand bucket for t.
func (s *Service) Hour(t time.Time) int {
	return t.In(s.loc).Hour()
}

// Current classifies using the configured counts.
func (s *Service) Current(ctx context.Context) (Classification, error) {
	return s.Classify(ctx, s.cfg.TopPeakHours, s.cfg.TopWards)
}

// Classify picks the topHours busiest hours, the topWards busiest wards, and
// as many of the quietest remaining wards from which a busy ward is reachable.
// Ties go to the lower hour or ward id. Zero-count hours and wards are never
// peak or high.
func (s *Service) Classify(ctx context.Context, topHours, topWards int) (Classification, error) {
	cells, err := s.store.Snapshot(ctx)
	if err != nil {
		return Classification{}, fmt.Errorf("demand snapshot: %w", err)
	}

	hourTotals := s.hourTotals(cells)
	wardTotals := make(map[string]int64)
	for _, id := range s.graph.IDs() {
		wardTotals[id] = 0
	}
	for _, c := range cells {
		if c.Hour < 0 || c.Hour > 23 || !s.graph.Has(c.Ward) {
			continue
		}
		wardTotals[c.Ward] += c.Count
	}

	out := Classification{
		PeakHours:       []int{},
		HighDemandWards: []string{},
		LowDemandWards:  []string{},
	}

	out.PeakHours = append(out.PeakHours, peakHours(hourTotals, topHours)...)

	busy := make([]string, 0, len(wardTotals))
	for _, id := range s.graph.IDs() {
		if wardTotals[id] > 0 {
			busy = append(busy, id)
		}
	}
	sort.SliceStable(busy, func(i, j int) bool {
		return wardTotals[busy[i]] > wardTotals[busy[j]]
	})
	out.HighDemandWards = append(out.HighDemandWards, busy[:min(max(topWards, 0), len(busy))]...)
	if len(out.HighDemandWards) == 0 {
		return out, nil
	}

	reachable := make(map[string]bool)
	for _, h := range out.HighDemandWards {
		dist, _ := s.graph.Hops(h)
		for id := range dist {
			reachable[id] = true
		}
	}
	quiet := make([]string, 0, len(wardTotals))
	for _, id := range s.graph.IDs() {
		if reachable[id] && !slices.Contains(out.HighDemandWards, id) {
			quiet = append(quiet, id)
		}
	}
	sort.SliceStable(quiet, func(i, j int) bool {
		return wardTotals[quiet[i]] < wardTotals[quiet[j]]
	})
	out.LowDemandWards = append(out.LowDemandWards, quiet[:min(topWards, len(quiet))]...)

	s.log.Debug().
		Ints("peak_hours", out.PeakHours).
		Strs("high", out.HighDemandWards).
		Strs("low", out.LowDemandWards).
		Msg("demand classified")
	return out, nil
}

// IsPeakHour reports whether hour is among the configured number of busiest
// hours. Only hour totals are computed.
func (s *Service) IsPeakHour(ctx context.Context, hour int) (bool, error) {
	cells, err := s.store.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("demand snapshot: %w", err)
	}
	return slices.Contains(peakHours(s.hourTotals(cells), s.cfg.TopPeakHours), hour), nil
}

func (s *Service) hourTotals(cells []Cell) [24]int64 {
	var totals [24]int64
	for _, c := range cells {
		if c.Hour < 0 || c.Hour > 23 || !s.graph.Has(c.Ward) {
			continue
		}
		totals[c.Hour] += c.Count
	}
	return totals
}

// peakHours returns the top non-empty hours, busiest first, ties to the lower hour.
func peakHours(totals [24]int64, top int) []int {
	hours := make([]int, 0, 24)
	for h, n := range totals {
		if n > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return totals[hours[i]] > totals[hours[j]]
	})
	return hours[:min(max(top, 0), len(hours))]
}
