// README: Ride service tests (flow, invalid requests, scheduled dispatch).
package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatri/internal/config"
	"yatri/internal/maps"
	"yatri/internal/modules/demand"
	"yatri/internal/modules/location"
	"yatri/internal/modules/matching"
	"yatri/internal/modules/pricing"
	"yatri/internal/modules/ward"
	"yatri/internal/types"
)

var (
	koramangala = types.Point{Lat: 12.935, Lng: 77.624}
	indiranagar = types.Point{Lat: 12.9784, Lng: 77.6408}
	whitefield  = types.Point{Lat: 12.9698, Lng: 77.7500}
)

type fixedRouter struct {
	km  float64
	err error
}

func (f fixedRouter) Route(ctx context.Context, _, _ types.Point) (maps.Route, error) {
	if f.err != nil {
		return maps.Route{}, f.err
	}
	return maps.Route{DistanceKm: f.km, Duration: time.Duration(f.km*2) * time.Minute}, nil
}

type blockingRouter struct{}

func (blockingRouter) Route(ctx context.Context, _, _ types.Point) (maps.Route, error) {
	<-ctx.Done()
	return maps.Route{}, ctx.Err()
}

type harness struct {
	rides   *Service
	drivers *matching.Service
	demand  *demand.Service
	pricing *pricing.Service
	store   *MemoryStore
	clock   *testClock
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func newHarness(t *testing.T, router maps.Router) *harness {
	return newHarnessWithStore(t, router, NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, router maps.Router, store Store) *harness {
	t.Helper()
	g, err := ward.NewGraph([]ward.Ward{
		{ID: "KOR", Name: "Koramangala", Centroid: koramangala, Adjacent: []string{"IND"}},
		{ID: "IND", Name: "Indiranagar", Centroid: indiranagar, Adjacent: []string{"WFD"}},
		{ID: "WFD", Name: "Whitefield", Centroid: whitefield},
	})
	require.NoError(t, err)

	log := zerolog.Nop()
	clock := &testClock{t: time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)}
	demandSvc := demand.NewService(demand.NewMemoryStore(), g, config.DemandConfig{TopPeakHours: 5, TopWards: 2}, time.UTC, log)
	pricingSvc := pricing.NewService(pricing.NewMemoryVoteStore(), config.PricingConfig{
		BaseFare: 50, PerKm: 15, Currency: "INR", VoteWindow: 10 * time.Minute,
	}, log).WithClock(clock.Now)
	driverSvc := matching.NewService(matching.NewMemoryStore(), location.NewMemoryIndex(), g, config.MatchingConfig{
		RadiusKm: 5,
		Weights:  config.RankWeights{Distance: 0.5, Acceptance: 0.3, Experience: 0.2},
	}, log)
	svc := NewService(store, router, pricingSvc, demandSvc, driverSvc, config.RideConfig{RoutingTimeout: 50 * time.Millisecond}, log).
		WithClock(clock.Now)

	h := &harness{rides: svc, drivers: driverSvc, demand: demandSvc, pricing: pricingSvc, clock: clock}
	if ms, ok := store.(*MemoryStore); ok {
		h.store = ms
	}
	return h
}

// sibling builds a second ride service over the same store and collaborators,
// standing in for another API replica.
func (h *harness) sibling(store Store, router maps.Router) *Service {
	return NewService(store, router, h.pricing, h.demand, h.drivers, config.RideConfig{RoutingTimeout: time.Second}, zerolog.Nop()).
		WithClock(h.clock.Now)
}

func (h *harness) addDriver(t *testing.T, id string, p types.Point, months int) {
	t.Helper()
	_, err := h.drivers.Register(context.Background(), matching.Driver{
		ID:                 types.ID(id),
		Location:           p,
		Available:          true,
		ExperienceMonths:   months,
		BaseAcceptanceRate: 0.8,
		PeakAcceptanceRate: 0.7,
	})
	require.NoError(t, err)
}

func (h *harness) request(t *testing.T, rider string) *Ride {
	t.Helper()
	pickup, dest := koramangala, indiranagar
	r, err := h.rides.RequestRide(context.Background(), RequestCommand{
		RiderID: types.ID(rider), Pickup: &pickup, Destination: &dest,
	})
	require.NoError(t, err)
	return r
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusRequested, StatusOffered, true},
		{StatusOffered, StatusConfirmed, true},
		{StatusConfirmed, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusRequested, StatusCancelled, true},
		{StatusOffered, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusRequested, false},
		{StatusRequested, StatusConfirmed, false},
		{StatusOffered, StatusInProgress, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRequestRideFareForFiveKm(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 5})
	h.addDriver(t, "d1", types.Point{Lat: 12.936, Lng: 77.625}, 10)

	r := h.request(t, "rider-1")
	assert.Equal(t, types.Money{Amount: 12500, Currency: "INR"}, r.Fare)
	assert.Equal(t, 5.0, r.DistanceKm)
	assert.Equal(t, StatusOffered, r.Status)
	assert.Equal(t, "KOR", r.PickupWard)
}

func TestRequestRideRecordsDemand(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fixedRouter{km: 3})
	pickup, dest := koramangala, indiranagar

	r, err := h.rides.RequestRide(ctx, RequestCommand{RiderID: "r1", Pickup: &pickup, Destination: &dest})
	require.ErrorIs(t, err, ErrNoDriversAvailable)
	require.NotNil(t, r)

	c, err := h.demand.Classify(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, c.PeakHours)
	assert.Equal(t, []string{"KOR"}, c.HighDemandWards)

	peak, err := h.demand.IsPeakHour(ctx, 9)
	require.NoError(t, err)
	assert.True(t, peak)
}

func TestRequestRideOffersRankedDrivers(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 4})
	h.addDriver(t, "far", types.Point{Lat: 12.95, Lng: 77.64}, 10)
	h.addDriver(t, "near", types.Point{Lat: 12.9351, Lng: 77.6241}, 10)
	h.addDriver(t, "away", whitefield, 100)

	r := h.request(t, "rider-1")
	require.Len(t, r.Offers, 2)
	assert.Equal(t, types.ID("near"), r.Offers[0].DriverID)
	assert.Equal(t, types.ID("far"), r.Offers[1].DriverID)
	assert.NotNil(t, r.OfferedAt)
}

func TestRequestRideValidation(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	ctx := context.Background()
	pickup := koramangala

	_, err := h.rides.RequestRide(ctx, RequestCommand{RiderID: "r", Pickup: &pickup})
	assert.ErrorIs(t, err, ErrMissingCoordinate)

	_, err = h.rides.RequestRide(ctx, RequestCommand{RiderID: "r", Destination: &pickup})
	assert.ErrorIs(t, err, ErrMissingCoordinate)

	bad := types.Point{Lat: 123, Lng: 0}
	_, err = h.rides.RequestRide(ctx, RequestCommand{RiderID: "r", Pickup: &pickup, Destination: &bad})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = h.rides.RequestRide(ctx, RequestCommand{Pickup: &pickup, Destination: &pickup})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRequestRideRoutingTimeout(t *testing.T) {
	h := newHarness(t, blockingRouter{})
	h.addDriver(t, "d1", koramangala, 1)
	pickup, dest := koramangala, indiranagar

	start := time.Now()
	_, err := h.rides.RequestRide(context.Background(), RequestCommand{RiderID: "r", Pickup: &pickup, Destination: &dest})
	assert.ErrorIs(t, err, ErrRoutingUnavailable)
	assert.Less(t, time.Since(start), time.Second)

	rides, err := h.rides.ListByRider(context.Background(), "r")
	require.NoError(t, err)
	assert.Empty(t, rides)
}

func TestRequestRideRoutingError(t *testing.T) {
	h := newHarness(t, fixedRouter{err: errors.New("quota exceeded")})
	pickup, dest := koramangala, indiranagar
	_, err := h.rides.RequestRide(context.Background(), RequestCommand{RiderID: "r", Pickup: &pickup, Destination: &dest})
	assert.ErrorIs(t, err, ErrRoutingUnavailable)
}

func TestRequestRideNoDriversThenReoffer(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	ctx := context.Background()
	pickup, dest := koramangala, indiranagar

	r, err := h.rides.RequestRide(ctx, RequestCommand{RiderID: "r", Pickup: &pickup, Destination: &dest})
	assert.ErrorIs(t, err, ErrNoDriversAvailable)
	require.NotNil(t, r)
	assert.Equal(t, StatusRequested, r.Status)

	stored, err := h.rides.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, stored.Status)
	assert.Empty(t, stored.Offers)

	h.addDriver(t, "d1", koramangala, 3)
	r, err = h.rides.Reoffer(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, r.Status)

	_, err = h.rides.Reoffer(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmRideSelection(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	ctx := context.Background()
	h.addDriver(t, "d1", koramangala, 3)
	h.addDriver(t, "d2", types.Point{Lat: 12.936, Lng: 77.626}, 3)
	h.addDriver(t, "outsider", whitefield, 3)
	r := h.request(t, "r")

	_, err := h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: r.ID, DriverID: "outsider"})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	require.NoError(t, h.drivers.SetAvailability(ctx, "d2", false))
	_, err = h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: r.ID, DriverID: "d2"})
	assert.ErrorIs(t, err, ErrDriverNoLongerAvailable)

	confirmed, err := h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: r.ID, DriverID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.DriverID)
	assert.Equal(t, types.ID("d1"), *confirmed.DriverID)
	assert.True(t, confirmed.Offered(*confirmed.DriverID))

	_, err = h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: r.ID, DriverID: "d1"})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: "missing", DriverID: "d1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRideLifecycleHappyPath(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	ctx := context.Background()
	h.addDriver(t, "d1", koramangala, 3)
	r := h.request(t, "r")

	_, err := h.rides.CompleteRide(ctx, CompleteCommand{RideID: r.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: r.ID, DriverID: "d1"})
	require.NoError(t, err)
	held, _ := h.store.HeldDrivers(ctx)
	assert.True(t, held["d1"])

	started, err := h.rides.StartRide(ctx, StartCommand{RideID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	_, err = h.rides.CancelRide(ctx, CancelCommand{RideID: r.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	done, err := h.rides.CompleteRide(ctx, CompleteCommand{RideID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	held, _ = h.store.HeldDrivers(ctx)
	assert.Empty(t, held)

	c, err := h.demand.Classify(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, c.PeakHours)
	assert.Equal(t, []string{"KOR"}, c.HighDemandWards)

	counts, err := h.rides.CompletedRides(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["d1"])

	events, err := h.rides.Events(ctx, r.ID)
	require.NoError(t, err)
	got := make([]Status, len(events))
	for i, e := range events {
		got[i] = e.ToStatus
	}
	assert.Equal(t, []Status{StatusRequested, StatusOffered, StatusConfirmed, StatusInProgress, StatusCompleted}, got)
}

func TestCancelReleasesHold(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	ctx := context.Background()
	h.addDriver(t, "d1", koramangala, 3)

	first := h.request(t, "r1")
	_, err := h.rides.ConfirmRide(ctx, ConfirmCommand{RideID: first.ID, DriverID: "d1"})
	require.NoError(t, err)

	pickup, dest := koramangala, indiranagar
	_, err = h.rides.RequestRide(ctx, RequestCommand{RiderID: "r2", Pickup: &pickup, Destination: &dest})
	assert.ErrorIs(t, err, ErrNoDriversAvailable, "held driver is not offered again")

	cancelled, err := h.rides.CancelRide(ctx, CancelCommand{RideID: first.ID, Reason: "changed plans"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "changed plans", *cancelled.CancelReason)

	second := h.request(t, "r2")
	assert.Equal(t, types.ID("d1"), second.Offers[0].DriverID)

	_, err = h.rides.CancelRide(ctx, CancelCommand{RideID: first.ID})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDispatchScheduledRestrictsToWard(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 6})
	ctx := context.Background()
	h.addDriver(t, "kor", koramangala, 30)
	h.addDriver(t, "wfd", types.Point{Lat: 12.97, Lng: 77.749}, 2)

	r, err := h.rides.DispatchScheduled(ctx, ScheduledCommand{
		PrebookingID: "pb-1",
		RiderID:      "r",
		Ward:         "WFD",
		Pickup:       whitefield,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, types.ID("wfd"), *r.DriverID)
	assert.Equal(t, int64(5000), r.Fare.Amount, "no destination prices at base fare")
	require.NotNil(t, r.PrebookingID)
	assert.Equal(t, types.ID("pb-1"), *r.PrebookingID)

	_, err = h.rides.DispatchScheduled(ctx, ScheduledCommand{PrebookingID: "pb-2", RiderID: "r", Ward: "WFD", Pickup: whitefield})
	assert.ErrorIs(t, err, ErrNoDriversAvailable)

	dest := indiranagar
	r, err = h.rides.DispatchScheduled(ctx, ScheduledCommand{PrebookingID: "pb-3", RiderID: "r", Ward: "KOR", Pickup: koramangala, Destination: &dest})
	require.NoError(t, err)
	assert.Equal(t, types.ID("kor"), *r.DriverID)
	assert.Equal(t, int64(14000), r.Fare.Amount)
}
