// README: Pricing service aggregates driver votes and computes fare quotes.
package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"yatri/internal/config"
	"yatri/internal/metrics"
	"yatri/internal/types"
)

type Service struct {
	votes VoteStore
	cfg   config.PricingConfig
	now   func() time.Time
	log   zerolog.Logger
}

func NewService(votes VoteStore, cfg config.PricingConfig, log zerolog.Logger) *Service {
	return &Service{votes: votes, cfg: cfg, now: time.Now, log: log.With().Str("module", "pricing").Logger()}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitVote records the driver's vote, replacing any earlier one.
func (s *Service) SubmitVote(ctx context.Context, driverID types.ID, direction int) error {
	if driverID == "" || (direction != VoteUp && direction != VoteDown) {
		return ErrInvalidVote
	}
	if err := s.votes.Put(ctx, Vote{DriverID: driverID, Direction: direction, At: s.now()}); err != nil {
		return fmt.Errorf("store vote: %w", err)
	}
	metrics.RecordVote(direction)
	s.log.Debug().Str("driver_id", driverID.String()).Int("direction", direction).Msg("vote recorded")
	return nil
}

// Summary averages in-window votes and evicts the rest.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	votes, err := s.votes.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list votes: %w", err)
	}
	cutoff := s.now().Add(-s.cfg.VoteWindow)

	var sum Summary
	var stale []Vote
	total := 0
	for _, v := range votes {
		if !v.At.After(cutoff) {
			stale = append(stale, v)
			continue
		}
		switch v.Direction {
		case VoteUp:
			sum.Up++
		case VoteDown:
			sum.Down++
		default:
			continue
		}
		total += v.Direction
		sum.Votes++
	}
	if len(stale) > 0 {
		if err := s.votes.Evict(ctx, stale...); err != nil {
			s.log.Warn().Err(err).Int("stale", len(stale)).Msg("evict stale votes")
		}
	}
	if sum.Votes > 0 {
		sum.Adjustment = clamp(float64(total)/float64(sum.Votes), -1, 1)
	}
	return sum, nil
}

func (s *Service) CurrentAdjustment(ctx context.Context) (float64, error) {
	sum, err := s.Summary(ctx)
	if err != nil {
		return 0, err
	}
	return sum.Adjustment, nil
}

// Quote prices a trip as base + perKm*distance*(1+adjustment), floored at MinFare.
func (s *Service) Quote(ctx context.Context, distanceKm float64) (Quote, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		return Quote{}, ErrInvalidDistance
	}
	adj, err := s.CurrentAdjustment(ctx)
	if err != nil {
		return Quote{}, err
	}
	fare := s.cfg.BaseFare + s.cfg.PerKm*distanceKm*(1+adj)
	fare = math.Max(fare, s.cfg.MinFare)
	return Quote{
		Fare:       types.MoneyFromMajor(fare, s.cfg.Currency),
		DistanceKm: distanceKm,
		Adjustment: adj,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
