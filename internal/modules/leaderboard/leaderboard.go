// README: Driver leaderboard (rank score, coins and tier from acceptance and completed rides).
package leaderboard

import (
	"context"
	"math"
	"sort"

	"yatri/internal/modules/matching"
	"yatri/internal/types"
)

type Tier string

const (
	TierPlatinum Tier = "platinum"
	TierGold     Tier = "gold"
	TierSilver   Tier = "silver"
	TierBronze   Tier = "bronze"
)

type tierRule struct {
	tier  Tier
	base  float64
	peak  float64
	rides int
}

// checked in order; the first rule met wins
var tierRules = []tierRule{
	{TierPlatinum, 0.80, 0.85, 200},
	{TierGold, 0.70, 0.75, 100},
	{TierSilver, 0.50, 0.60, 50},
}

type Entry struct {
	Rank           int      `json:"rank"`
	DriverID       types.ID `json:"driver_id"`
	Name           string   `json:"name"`
	Score          float64  `json:"score"`
	Coins          int      `json:"coins"`
	Tier           Tier     `json:"tier"`
	CompletedRides int      `json:"completed_rides"`
}

func Score(base, peak float64, rides int) float64 {
	return 0.3*base + 0.7*peak + float64(rides)/1000
}

func Coins(base, peak float64, rides int) int {
	return int(math.Floor(50*base + 100*peak + 2*float64(rides)))
}

func TierFor(base, peak float64, rides int) Tier {
	for _, r := range tierRules {
		if base >= r.base && peak >= r.peak && rides >= r.rides {
			return r.tier
		}
	}
	return TierBronze
}

// Build ranks drivers by score, highest first, ties by driver id. Ranks start at 1.
func Build(drivers []matching.Driver, completed map[types.ID]int) []Entry {
	out := make([]Entry, 0, len(drivers))
	for _, d := range drivers {
		n := completed[d.ID]
		out = append(out, Entry{
			DriverID:       d.ID,
			Name:           d.Name,
			Score:          Score(d.BaseAcceptanceRate, d.PeakAcceptanceRate, n),
			Coins:          Coins(d.BaseAcceptanceRate, d.PeakAcceptanceRate, n),
			Tier:           TierFor(d.BaseAcceptanceRate, d.PeakAcceptanceRate, n),
			CompletedRides: n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DriverID < out[j].DriverID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

type Drivers interface {
	List(ctx context.Context) ([]matching.Driver, error)
}

type Rides interface {
	CompletedRides(ctx context.Context) (map[types.ID]int, error)
}

type Service struct {
	drivers Drivers
	rides   Rides
}

func NewService(drivers Drivers, rides Rides) *Service {
	return &Service{drivers: drivers, rides: rides}
}

// Top returns the first limit entries; limit <= 0 returns all.
func (s *Service) Top(ctx context.Context, limit int) ([]Entry, error) {
	drivers, err := s.drivers.List(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := s.rides.CompletedRides(ctx)
	if err != nil {
		return nil, err
	}
	entries := Build(drivers, completed)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
