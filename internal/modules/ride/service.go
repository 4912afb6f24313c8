// README: Ride service implements the request/offer/confirm lifecycle and driver holds.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"yatri/internal/config"
	"yatri/internal/lock"
	"yatri/internal/maps"
	"yatri/internal/metrics"
	"yatri/internal/modules/matching"
	"yatri/internal/modules/pricing"
	"yatri/internal/types"
)

var (
	ErrNotFound                = errors.New("ride not found")
	ErrInvalidState            = errors.New("invalid state transition")
	ErrConflict                = errors.New("ride state conflict")
	ErrBadRequest              = errors.New("bad request")
	ErrMissingCoordinate       = errors.New("pickup and destination are required")
	ErrRoutingUnavailable      = errors.New("routing unavailable")
	ErrNoDriversAvailable      = errors.New("no drivers available")
	ErrInvalidSelection        = errors.New("driver was not offered this ride")
	ErrDriverNoLongerAvailable = errors.New("driver no longer available")
)

type Pricing interface {
	Quote(ctx context.Context, distanceKm float64) (pricing.Quote, error)
}

type Demand interface {
	RecordAt(ctx context.Context, p types.Point, at time.Time) (string, error)
	IsPeakHour(ctx context.Context, hour int) (bool, error)
	Hour(t time.Time) int
	Ward(p types.Point) string
}

type Drivers interface {
	Rank(ctx context.Context, q matching.Query) ([]matching.Ranked, error)
	Get(ctx context.Context, id types.ID) (matching.Driver, error)
}

type Service struct {
	store   Store
	router  maps.Router
	pricing Pricing
	demand  Demand
	drivers Drivers
	cfg     config.RideConfig
	locks   *lock.Keyed
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(store Store, router maps.Router, pricing Pricing, demand Demand, drivers Drivers, cfg config.RideConfig, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		router:  router,
		pricing: pricing,
		demand:  demand,
		drivers: drivers,
		cfg:     cfg,
		locks:   lock.NewKeyed(),
		now:     time.Now,
		log:     log.With().Str("module", "ride").Logger(),
	}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RequestCommand struct {
	RiderID     types.ID
	Pickup      *types.Point
	Destination *types.Point
}

type ConfirmCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type StartCommand struct {
	RideID types.ID
}

type CompleteCommand struct {
	RideID types.ID
}

type CancelCommand struct {
	RideID    types.ID
	ActorType string
	ActorID   *types.ID
	Reason    string
}

// ScheduledCommand dispatches a prebooked pickup to the best driver of a ward.
type ScheduledCommand struct {
	PrebookingID types.ID
	RiderID      types.ID
	Ward         string
	Pickup       types.Point
	Destination  *types.Point
}

// RequestRide prices the trip, persists it as requested and offers it to the
// ranked drivers. With nobody eligible it returns the requested ride together
// with ErrNoDriversAvailable so the caller can retry via Reoffer.
func (s *Service) RequestRide(ctx context.Context, cmd RequestCommand) (*Ride, error) {
	if cmd.RiderID == "" {
		return nil, ErrBadRequest
	}
	if cmd.Pickup == nil || cmd.Destination == nil {
		return nil, ErrMissingCoordinate
	}
	if !cmd.Pickup.Valid() || !cmd.Destination.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}

	route, err := s.route(ctx, *cmd.Pickup, *cmd.Destination)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Quote(ctx, route.DistanceKm)
	if err != nil {
		return nil, fmt.Errorf("quote fare: %w", err)
	}

	now := s.now()
	r := &Ride{
		ID:          types.NewID(),
		RiderID:     cmd.RiderID,
		Status:      StatusRequested,
		Pickup:      *cmd.Pickup,
		Destination: *cmd.Destination,
		PickupWard:  s.demand.Ward(*cmd.Pickup),
		Fare:        quote.Fare,
		DistanceKm:  route.DistanceKm,
		Duration:    route.Duration,
		Polyline:    route.Polyline,
		CreatedAt:   now,
	}

	unlock := s.locks.Lock(string(r.ID))
	defer unlock()

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, r.ID, StatusNone, StatusRequested, "rider", &r.RiderID)
	metrics.RideTransitions.WithLabelValues(string(StatusRequested)).Inc()
	s.recordDemand(ctx, r)

	return s.offer(ctx, r)
}

// Reoffer runs the ranking again for a ride still waiting in requested.
func (s *Service) Reoffer(ctx context.Context, rideID types.ID) (*Ride, error) {
	unlock := s.locks.Lock(string(rideID))
	defer unlock()

	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusRequested {
		return nil, ErrInvalidState
	}
	return s.offer(ctx, r)
}

func (s *Service) offer(ctx context.Context, r *Ride) (*Ride, error) {
	held, err := s.store.HeldDrivers(ctx)
	if err != nil {
		return r, err
	}
	ranked, err := s.drivers.Rank(ctx, matching.Query{
		Pickup:  r.Pickup,
		Peak:    s.isPeak(ctx, s.now()),
		Exclude: held,
	})
	if err != nil {
		return r, fmt.Errorf("rank drivers: %w", err)
	}
	if len(ranked) == 0 {
		metrics.NoDriversTotal.Inc()
		s.log.Info().Str("ride_id", r.ID.String()).Msg("no drivers available")
		return r, ErrNoDriversAvailable
	}
	if err := s.transition(ctx, r, StatusOffered, "system", nil, func(t *Transition) {
		t.Offers = ranked
	}); err != nil {
		return r, err
	}
	return s.store.Get(ctx, r.ID)
}

// ConfirmRide commits one of the offered drivers. Only one confirm per ride
// can win; losers get ErrInvalidSelection or ErrDriverNoLongerAvailable.
func (s *Service) ConfirmRide(ctx context.Context, cmd ConfirmCommand) (*Ride, error) {
	if cmd.RideID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	unlock := s.locks.Lock(string(cmd.RideID))
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusOffered {
		return nil, fmt.Errorf("%w: ride is %s", ErrInvalidSelection, r.Status)
	}
	if !r.Offered(cmd.DriverID) {
		return nil, ErrInvalidSelection
	}
	return s.commitDriver(ctx, r, cmd.DriverID, "rider", &r.RiderID)
}

func (s *Service) commitDriver(ctx context.Context, r *Ride, driverID types.ID, actorType string, actorID *types.ID) (*Ride, error) {
	d, err := s.drivers.Get(ctx, driverID)
	if errors.Is(err, matching.ErrDriverNotFound) {
		return nil, ErrDriverNoLongerAvailable
	}
	if err != nil {
		return nil, err
	}
	if !d.Available {
		return nil, ErrDriverNoLongerAvailable
	}

	ok, err := s.store.AcquireHold(ctx, driverID, r.ID)
	if err != nil {
		return nil, fmt.Errorf("acquire hold: %w", err)
	}
	if !ok {
		return nil, ErrDriverNoLongerAvailable
	}
	err = s.transition(ctx, r, StatusConfirmed, actorType, actorID, func(t *Transition) {
		t.DriverID = &driverID
	})
	if err != nil {
		if rerr := s.store.ReleaseHold(ctx, driverID, r.ID); rerr != nil {
			s.log.Error().Err(rerr).Str("driver_id", driverID.String()).Msg("release hold after failed confirm")
		}
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: ride no longer offered", ErrInvalidSelection)
		}
		return nil, err
	}
	return s.store.Get(ctx, r.ID)
}

func (s *Service) StartRide(ctx context.Context, cmd StartCommand) (*Ride, error) {
	unlock := s.locks.Lock(string(cmd.RideID))
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, r, StatusInProgress, "driver", r.DriverID, nil); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, r.ID)
}

// CompleteRide finishes the trip and frees the driver.
func (s *Service) CompleteRide(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	unlock := s.locks.Lock(string(cmd.RideID))
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, r, StatusCompleted, "driver", r.DriverID, nil); err != nil {
		return nil, err
	}
	s.releaseHold(ctx, r)
	return s.store.Get(ctx, r.ID)
}

func (s *Service) CancelRide(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	unlock := s.locks.Lock(string(cmd.RideID))
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	actorType := cmd.ActorType
	if actorType == "" {
		actorType = "rider"
	}
	actorID := cmd.ActorID
	if actorID == nil && actorType == "rider" {
		actorID = &r.RiderID
	}
	reason := cmd.Reason
	if err := s.transition(ctx, r, StatusCancelled, actorType, actorID, func(t *Transition) {
		t.Reason = &reason
	}); err != nil {
		return nil, err
	}
	s.releaseHold(ctx, r)
	return s.store.Get(ctx, r.ID)
}

// DispatchScheduled ranks the drivers of cmd.Ward and confirms the best one
// whose hold can be taken. Nothing is persisted when nobody is eligible.
func (s *Service) DispatchScheduled(ctx context.Context, cmd ScheduledCommand) (*Ride, error) {
	held, err := s.store.HeldDrivers(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ranked, err := s.drivers.Rank(ctx, matching.Query{
		Pickup:  cmd.Pickup,
		Peak:    s.isPeak(ctx, now),
		Exclude: held,
		Ward:    cmd.Ward,
	})
	if err != nil {
		return nil, fmt.Errorf("rank drivers: %w", err)
	}
	if len(ranked) == 0 {
		return nil, ErrNoDriversAvailable
	}

	dest := cmd.Pickup
	var route maps.Route
	if cmd.Destination != nil {
		dest = *cmd.Destination
		if route, err = s.route(ctx, cmd.Pickup, dest); err != nil {
			s.log.Warn().Err(err).Str("prebooking_id", cmd.PrebookingID.String()).Msg("scheduled ride priced without route")
			route = maps.Route{}
		}
	}
	quote, err := s.pricing.Quote(ctx, route.DistanceKm)
	if err != nil {
		return nil, fmt.Errorf("quote fare: %w", err)
	}

	prebookingID := cmd.PrebookingID
	r := &Ride{
		ID:           types.NewID(),
		RiderID:      cmd.RiderID,
		Status:       StatusRequested,
		Pickup:       cmd.Pickup,
		Destination:  dest,
		PickupWard:   cmd.Ward,
		Fare:         quote.Fare,
		DistanceKm:   route.DistanceKm,
		Duration:     route.Duration,
		Polyline:     route.Polyline,
		PrebookingID: &prebookingID,
		CreatedAt:    now,
	}

	unlock := s.locks.Lock(string(r.ID))
	defer unlock()

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, r.ID, StatusNone, StatusRequested, "scheduler", nil)
	s.recordDemand(ctx, r)
	if err := s.transition(ctx, r, StatusOffered, "scheduler", nil, func(t *Transition) {
		t.Offers = ranked
	}); err != nil {
		return nil, err
	}

	for _, cand := range ranked {
		cur, err := s.store.Get(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		confirmed, err := s.commitDriver(ctx, cur, cand.DriverID, "scheduler", nil)
		if err == nil {
			return confirmed, nil
		}
		if !errors.Is(err, ErrDriverNoLongerAvailable) {
			return nil, err
		}
	}

	cur, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	reason := "no offered driver could be held"
	if err := s.transition(ctx, cur, StatusCancelled, "scheduler", nil, func(t *Transition) {
		t.Reason = &reason
	}); err != nil {
		return nil, err
	}
	return nil, ErrNoDriversAvailable
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, id)
}

func (s *Service) ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	return s.store.ListByRider(ctx, riderID)
}

// CompletedRides returns completed ride counts per driver.
func (s *Service) CompletedRides(ctx context.Context) (map[types.ID]int, error) {
	return s.store.CountCompletedByDriver(ctx)
}

// recordDemand counts the ride's pickup ward and hour. Failures only log.
func (s *Service) recordDemand(ctx context.Context, r *Ride) {
	if _, err := s.demand.RecordAt(ctx, r.Pickup, r.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("ride_id", r.ID.String()).Msg("record demand")
	}
}

func (s *Service) route(ctx context.Context, from, to types.Point) (maps.Route, error) {
	routeCtx, cancel := context.WithTimeout(ctx, s.cfg.RoutingTimeout)
	defer cancel()
	route, err := s.router.Route(routeCtx, from, to)
	if err != nil {
		if ctx.Err() != nil {
			return maps.Route{}, ctx.Err()
		}
		metrics.RoutingFailures.Inc()
		s.log.Warn().Err(err).Msg("routing failed")
		return maps.Route{}, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	return route, nil
}

func (s *Service) isPeak(ctx context.Context, at time.Time) bool {
	peak, err := s.demand.IsPeakHour(ctx, s.demand.Hour(at))
	if err != nil {
		s.log.Warn().Err(err).Msg("peak hour lookup failed; using off-peak")
		return false
	}
	return peak
}

func (s *Service) transition(ctx context.Context, r *Ride, to Status, actorType string, actorID *types.ID, mutate func(*Transition)) error {
	if !CanTransition(r.Status, to) {
		return ErrInvalidState
	}
	t := Transition{ID: r.ID, From: r.Status, To: to, Version: r.StatusVersion, At: s.now()}
	if mutate != nil {
		mutate(&t)
	}
	ok, err := s.store.UpdateStatus(ctx, t)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, r.ID, r.Status, to, actorType, actorID)
	metrics.RideTransitions.WithLabelValues(string(to)).Inc()
	s.log.Debug().
		Str("ride_id", r.ID.String()).
		Str("from", string(r.Status)).
		Str("to", string(to)).
		Msg("ride transition")
	r.Status = to
	r.StatusVersion++
	return nil
}

func (s *Service) appendEvent(ctx context.Context, rideID types.ID, from, to Status, actorType string, actorID *types.ID) {
	err := s.store.AppendEvent(ctx, &Event{
		RideID:     rideID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("ride_id", rideID.String()).Msg("append ride event")
	}
}

func (s *Service) releaseHold(ctx context.Context, r *Ride) {
	if r.DriverID == nil {
		return
	}
	if err := s.store.ReleaseHold(ctx, *r.DriverID, r.ID); err != nil {
		s.log.Error().Err(err).Str("ride_id", r.ID.String()).Msg("release driver hold")
	}
}
