package prebooking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatri/internal/modules/ride"
)

// Cancel racing the sweep must end cancelled, with the penalty only when a
// ride was actually assigned, and never leave the driver held.
func TestCancelRacesSweep(t *testing.T) {
	for i := 0; i < 25; i++ {
		f := newFixture(t)
		ctx := context.Background()
		f.addDriver(t, "d1", koramangala, "")
		p := f.prebook(t, "1", 10*time.Minute)

		var wg sync.WaitGroup
		start := make(chan struct{})
		var cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, _ = f.svc.Sweep(ctx)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, cancelErr = f.svc.Cancel(ctx, CancelCommand{PrebookingID: p.ID})
		}()
		close(start)
		wg.Wait()
		require.NoError(t, cancelErr)

		got, err := f.svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		if got.RideID != nil {
			assert.True(t, got.CancellationPenalty)
			r, err := f.rides.Get(ctx, *got.RideID)
			require.NoError(t, err)
			assert.Equal(t, ride.StatusCancelled, r.Status)
		} else {
			assert.False(t, got.CancellationPenalty)
		}

		held, err := f.rideStore.HeldDrivers(ctx)
		require.NoError(t, err)
		assert.Empty(t, held)
	}
}

func TestConcurrentSweepsAssignOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDriver(t, "d1", koramangala, "")
	f.addDriver(t, "d2", koramangala, "")
	a := f.prebook(t, "1", 10*time.Minute)
	b := f.prebook(t, "2", 12*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Sweep(ctx)
		}()
	}
	wg.Wait()

	ga, _ := f.svc.Get(ctx, a.ID)
	gb, _ := f.svc.Get(ctx, b.ID)
	require.Equal(t, StatusAssigned, ga.Status)
	require.Equal(t, StatusAssigned, gb.Status)
	assert.NotEqual(t, *ga.DriverID, *gb.DriverID)

	rides, err := f.rides.ListByRider(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, rides, 1, "one ride per booking")
}
