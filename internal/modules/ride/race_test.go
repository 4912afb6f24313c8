package ride

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatri/internal/testutil/pgtest"
	"yatri/internal/types"
)

func confirmRace(t *testing.T, svcs []*Service, cmds []ConfirmCommand) (int32, []error) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		success int32
		mu      sync.Mutex
		errs    []error
	)
	start := make(chan struct{})
	for i, cmd := range cmds {
		svc := svcs[i%len(svcs)]
		wg.Add(1)
		go func(cmd ConfirmCommand) {
			defer wg.Done()
			<-start
			_, err := svc.ConfirmRide(context.Background(), cmd)
			if err == nil {
				atomic.AddInt32(&success, 1)
				return
			}
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(cmd)
	}
	close(start)
	wg.Wait()
	return success, errs
}

func TestConcurrentConfirmDifferentDrivers(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	h.addDriver(t, "d1", koramangala, 3)
	h.addDriver(t, "d2", koramangala, 3)
	r := h.request(t, "r")
	other := h.sibling(h.store, fixedRouter{km: 3})

	success, errs := confirmRace(t, []*Service{h.rides, other}, []ConfirmCommand{
		{RideID: r.ID, DriverID: "d1"},
		{RideID: r.ID, DriverID: "d2"},
	})
	assert.Equal(t, int32(1), success)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrInvalidSelection) || errors.Is(errs[0], ErrDriverNoLongerAvailable), "got %v", errs[0])

	got, err := h.rides.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.DriverID)

	held, err := h.store.HeldDrivers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[types.ID]bool{*got.DriverID: true}, held, "loser's hold is released")
}

func TestConcurrentConfirmSameDriverTwoRides(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	h.addDriver(t, "d1", koramangala, 3)
	a := h.request(t, "ra")
	b := h.request(t, "rb")

	success, errs := confirmRace(t, []*Service{h.rides}, []ConfirmCommand{
		{RideID: a.ID, DriverID: "d1"},
		{RideID: b.ID, DriverID: "d1"},
	})
	assert.Equal(t, int32(1), success)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDriverNoLongerAvailable)

	ctx := context.Background()
	ra, _ := h.rides.Get(ctx, a.ID)
	rb, _ := h.rides.Get(ctx, b.ID)
	statuses := []Status{ra.Status, rb.Status}
	assert.ElementsMatch(t, []Status{StatusConfirmed, StatusOffered}, statuses)
}

func TestConcurrentConfirmManyAttempts(t *testing.T) {
	h := newHarness(t, fixedRouter{km: 3})
	ids := []types.ID{"d1", "d2", "d3", "d4"}
	for _, id := range ids {
		h.addDriver(t, string(id), koramangala, 3)
	}
	r := h.request(t, "r")
	other := h.sibling(h.store, fixedRouter{km: 3})

	var cmds []ConfirmCommand
	for i := 0; i < 20; i++ {
		cmds = append(cmds, ConfirmCommand{RideID: r.ID, DriverID: ids[i%len(ids)]})
	}
	success, errs := confirmRace(t, []*Service{h.rides, other}, cmds)
	assert.Equal(t, int32(1), success)
	assert.Len(t, errs, 19)

	held, err := h.store.HeldDrivers(context.Background())
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestPGConcurrentConfirm(t *testing.T) {
	db := pgtest.Open(t)
	store := NewPGStore(db)
	h := newHarnessWithStore(t, fixedRouter{km: 5}, store)
	h.addDriver(t, "d1", koramangala, 3)
	h.addDriver(t, "d2", koramangala, 3)
	ctx := context.Background()

	r := h.request(t, "r")
	assert.Equal(t, int64(12500), r.Fare.Amount)
	require.Len(t, r.Offers, 2)

	other := h.sibling(store, fixedRouter{km: 5})
	success, errs := confirmRace(t, []*Service{h.rides, other}, []ConfirmCommand{
		{RideID: r.ID, DriverID: "d1"},
		{RideID: r.ID, DriverID: "d2"},
	})
	assert.Equal(t, int32(1), success)
	assert.Len(t, errs, 1)

	held, err := store.HeldDrivers(ctx)
	require.NoError(t, err)
	assert.Len(t, held, 1)

	got, err := h.rides.Get(ctx, r.ID)
	require.NoError(t, err)
	_, err = h.rides.StartRide(ctx, StartCommand{RideID: got.ID})
	require.NoError(t, err)
	_, err = h.rides.CompleteRide(ctx, CompleteCommand{RideID: got.ID})
	require.NoError(t, err)

	held, err = store.HeldDrivers(ctx)
	require.NoError(t, err)
	assert.Empty(t, held)

	counts, err := store.CountCompletedByDriver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[*got.DriverID])

	events, err := h.rides.Events(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, events, 5)

	rides, err := h.rides.ListByRider(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, rides, 1)
}
