package leaderboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatri/internal/modules/matching"
	"yatri/internal/types"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		name       string
		base, peak float64
		rides      int
		want       Tier
	}{
		{"platinum", 0.80, 0.85, 200, TierPlatinum},
		{"platinum short on rides", 0.90, 0.90, 199, TierGold},
		{"gold", 0.70, 0.75, 100, TierGold},
		{"silver", 0.50, 0.60, 50, TierSilver},
		{"silver low peak", 0.95, 0.59, 500, TierBronze},
		{"new driver", 0, 0, 0, TierBronze},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TierFor(tc.base, tc.peak, tc.rides))
		})
	}
}

func TestScoreAndCoins(t *testing.T) {
	assert.InDelta(t, 0.3*0.8+0.7*0.9+0.25, Score(0.8, 0.9, 250), 1e-12)
	assert.Equal(t, 40+90+500, Coins(0.8, 0.9, 250))
	assert.Equal(t, 0, Coins(0.001, 0.001, 0))
}

type fakeDrivers []matching.Driver

func (f fakeDrivers) List(context.Context) ([]matching.Driver, error) { return f, nil }

type fakeRides map[types.ID]int

func (f fakeRides) CompletedRides(context.Context) (map[types.ID]int, error) { return f, nil }

func TestTopRanksByScore(t *testing.T) {
	drivers := fakeDrivers{
		{ID: "a", BaseAcceptanceRate: 0.6, PeakAcceptanceRate: 0.6},
		{ID: "b", BaseAcceptanceRate: 0.9, PeakAcceptanceRate: 0.9},
		{ID: "c", BaseAcceptanceRate: 0.6, PeakAcceptanceRate: 0.6},
	}
	svc := NewService(drivers, fakeRides{"b": 210, "c": 5})

	all, err := svc.Top(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []types.ID{"b", "c", "a"}, []types.ID{all[0].DriverID, all[1].DriverID, all[2].DriverID})
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].Rank, all[1].Rank, all[2].Rank})
	assert.Equal(t, TierPlatinum, all[0].Tier)
	assert.Equal(t, 210, all[0].CompletedRides)

	top, err := svc.Top(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	empty, err := NewService(fakeDrivers{}, fakeRides{}).Top(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
