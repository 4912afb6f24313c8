package matching

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatri/internal/config"
	"yatri/internal/modules/location"
	"yatri/internal/modules/ward"
	"yatri/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	g, err := ward.NewGraph([]ward.Ward{
		{ID: "MG", Centroid: types.Point{Lat: 12.9756, Lng: 77.6066}, Adjacent: []string{"WF"}},
		{ID: "WF", Centroid: types.Point{Lat: 12.9698, Lng: 77.7500}},
	})
	require.NoError(t, err)
	cfg := config.MatchingConfig{RadiusKm: 5, Weights: config.RankWeights{Distance: 0.5, Acceptance: 0.3, Experience: 0.2}}
	return NewService(NewMemoryStore(), location.NewMemoryIndex(), g, cfg, zerolog.Nop())
}

func TestRegisterValidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, Driver{ID: "d1", Location: types.Point{Lat: 12.97, Lng: 77.6}, BaseAcceptanceRate: 1.2})
	assert.ErrorIs(t, err, ErrInvalidDriver)

	_, err = svc.Register(ctx, Driver{ID: "d1", Location: types.Point{Lat: 12.97, Lng: 77.6}, PrimaryWard: "XX"})
	assert.ErrorIs(t, err, ErrInvalidDriver)

	d, err := svc.Register(ctx, driverAt("d1", 12.97, 77.6))
	require.NoError(t, err)
	assert.True(t, d.Available)
}

func TestRankFollowsAvailabilityAndLocation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, driverAt("d1", 12.975, 77.596))
	require.NoError(t, err)
	_, err = svc.Register(ctx, driverAt("d2", 12.99, 77.60))
	require.NoError(t, err)

	ranked, err := svc.Rank(ctx, Query{Pickup: pickup})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, types.ID("d1"), ranked[0].DriverID)

	require.NoError(t, svc.SetAvailability(ctx, "d1", false))
	ranked, err = svc.Rank(ctx, Query{Pickup: pickup})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, types.ID("d2"), ranked[0].DriverID)

	require.NoError(t, svc.UpdateLocation(ctx, "d2", types.Point{Lat: 13.3, Lng: 77.9}))
	ranked, err = svc.Rank(ctx, Query{Pickup: pickup})
	require.NoError(t, err)
	assert.Empty(t, ranked)

	assert.ErrorIs(t, svc.SetAvailability(ctx, "ghost", true), ErrDriverNotFound)
	assert.ErrorIs(t, svc.UpdateLocation(ctx, "d2", types.Point{Lat: 200}), location.ErrInvalidPoint)
}

func TestRankExcludesHeldDrivers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Register(ctx, driverAt("d1", 12.975, 77.596))
	_, _ = svc.Register(ctx, driverAt("d2", 12.976, 77.597))

	ranked, err := svc.Rank(ctx, Query{Pickup: pickup, Exclude: map[types.ID]bool{"d1": true}})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, types.ID("d2"), ranked[0].DriverID)
}

func TestRankByWard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inWard := driverAt("local", 12.9700, 77.7490)
	homed := driverAt("homed", 12.9756, 77.6066)
	homed.PrimaryWard = "WF"
	other := driverAt("other", 12.9756, 77.6066)
	for _, d := range []Driver{inWard, homed, other} {
		_, err := svc.Register(ctx, d)
		require.NoError(t, err)
	}

	wf, _ := svc.graph.Get("WF")
	ranked, err := svc.Rank(ctx, Query{Pickup: wf.Centroid, Ward: "WF"})
	require.NoError(t, err)
	ids := make([]types.ID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.DriverID
	}
	assert.ElementsMatch(t, []types.ID{"local", "homed"}, ids)
	assert.Equal(t, types.ID("local"), ranked[0].DriverID)
}

func TestSeedIndexRestoresPersistedDrivers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, driverAt("d1", 12.975, 77.596)))
	offline := driverAt("d2", 12.976, 77.597)
	offline.Available = false
	require.NoError(t, store.Upsert(ctx, offline))

	cfg := config.MatchingConfig{RadiusKm: 5, Weights: config.RankWeights{Distance: 0.5, Acceptance: 0.3, Experience: 0.2}}
	svc := NewService(store, location.NewMemoryIndex(), nil, cfg, zerolog.Nop())

	ranked, err := svc.Rank(ctx, Query{Pickup: pickup})
	require.NoError(t, err)
	assert.Empty(t, ranked, "index starts empty")

	n, err := svc.SeedIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ranked, err = svc.Rank(ctx, Query{Pickup: pickup})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, types.ID("d1"), ranked[0].DriverID)
}
