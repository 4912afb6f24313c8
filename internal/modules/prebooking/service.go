// README: Prebooking service schedules rides per ward and sweeps due bookings into the ride lifecycle.
package prebooking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"yatri/internal/config"
	"yatri/internal/lock"
	"yatri/internal/metrics"
	"yatri/internal/modules/ride"
	"yatri/internal/modules/ward"
	"yatri/internal/types"
)

var (
	ErrNotFound     = errors.New("prebooking not found")
	ErrInvalidTime  = errors.New("pickup time must be in the future")
	ErrUnknownWard  = errors.New("unknown ward")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("prebooking state conflict")
	ErrBadRequest   = errors.New("bad request")
)

type Rides interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	DispatchScheduled(ctx context.Context, cmd ride.ScheduledCommand) (*ride.Ride, error)
	CancelRide(ctx context.Context, cmd ride.CancelCommand) (*ride.Ride, error)
}

// Publisher delivers booking notices to ward queues.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, v any) error
}

type Service struct {
	store Store
	rides Rides
	wards *ward.Graph
	pub   Publisher
	cfg   config.PrebookingConfig
	locks *lock.Keyed
	now   func() time.Time
	log   zerolog.Logger
}

// NewService wires the scheduler. pub may be nil, in which case nothing is published.
func NewService(store Store, rides Rides, wards *ward.Graph, pub Publisher, cfg config.PrebookingConfig, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		rides: rides,
		wards: wards,
		pub:   pub,
		cfg:   cfg,
		locks: lock.NewKeyed(),
		now:   time.Now,
		log:   log.With().Str("module", "prebooking").Logger(),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateCommand struct {
	RiderID     types.ID
	Ward        string
	PickupTime  time.Time
	Destination *types.Point
}

type CancelCommand struct {
	PrebookingID types.ID
	Reason       string
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Assigned int `json:"assigned"`
	Expired  int `json:"expired"`
	Waiting  int `json:"waiting"`
}

func (s *Service) Prebook(ctx context.Context, cmd CreateCommand) (*Prebooking, error) {
	if cmd.RiderID == "" {
		return nil, ErrBadRequest
	}
	now := s.now()
	if !cmd.PickupTime.After(now) {
		return nil, ErrInvalidTime
	}
	if !s.wards.Has(cmd.Ward) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWard, cmd.Ward)
	}
	if cmd.Destination != nil && !cmd.Destination.Valid() {
		return nil, fmt.Errorf("%w: destination out of range", ErrBadRequest)
	}

	p := &Prebooking{
		ID:          types.NewID(),
		RiderID:     cmd.RiderID,
		Ward:        cmd.Ward,
		PickupTime:  cmd.PickupTime,
		Status:      StatusPending,
		Destination: cmd.Destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	metrics.PrebookingTransitions.WithLabelValues(string(StatusPending)).Inc()
	s.publish(ctx, p)
	return p, nil
}

func (s *Service) publish(ctx context.Context, p *Prebooking) {
	if s.pub == nil {
		return
	}
	err := s.pub.PublishJSON(ctx, QueueName(p.Ward), Message{
		PrebookingID: p.ID,
		RiderID:      p.RiderID,
		Ward:         p.Ward,
		PickupTime:   p.PickupTime,
	})
	metrics.RecordPublish(err)
	if err != nil {
		s.log.Warn().Err(err).Str("prebooking_id", p.ID.String()).Msg("publish to ward queue")
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Prebooking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByRider(ctx context.Context, riderID types.ID) ([]*Prebooking, error) {
	return s.store.ListByRider(ctx, riderID)
}

// Cancel ends a pending or assigned booking and reports the result. An
// assigned booking carries the penalty flag and its ride is cancelled too.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Prebooking, error) {
	unlock := s.locks.Lock(string(cmd.PrebookingID))
	defer unlock()

	p, err := s.store.Get(ctx, cmd.PrebookingID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case StatusPending:
		if err := s.transition(ctx, p, StatusCancelled, nil); err != nil {
			return nil, err
		}
	case StatusAssigned:
		if err := s.cancelLinkedRide(ctx, p, cmd.Reason); err != nil {
			return nil, err
		}
		if err := s.transition(ctx, p, StatusCancelled, func(t *Transition) { t.Penalty = true }); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidState
	}
	return s.store.Get(ctx, p.ID)
}

func (s *Service) cancelLinkedRide(ctx context.Context, p *Prebooking, reason string) error {
	if p.RideID == nil {
		return nil
	}
	r, err := s.rides.Get(ctx, *p.RideID)
	if err != nil {
		return fmt.Errorf("load linked ride: %w", err)
	}
	switch r.Status {
	case ride.StatusCancelled:
		return nil
	case ride.StatusInProgress, ride.StatusCompleted:
		return fmt.Errorf("%w: ride already %s", ErrInvalidState, r.Status)
	}
	if reason == "" {
		reason = "prebooking cancelled"
	}
	_, err = s.rides.CancelRide(ctx, ride.CancelCommand{
		RideID:    r.ID,
		ActorType: "rider",
		ActorID:   &p.RiderID,
		Reason:    reason,
	})
	if err != nil {
		return fmt.Errorf("cancel linked ride: %w", err)
	}
	return nil
}

// Sweep expires overdue bookings and dispatches those inside the lead window.
// A failed dispatch leaves the booking pending for the next sweep.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome, err := s.sweepOne(ctx, p.ID)
		if err != nil {
			s.log.Error().Err(err).Str("prebooking_id", p.ID.String()).Msg("sweep prebooking")
			continue
		}
		switch outcome {
		case StatusAssigned:
			res.Assigned++
		case StatusExpired:
			res.Expired++
		case StatusPending:
			res.Waiting++
		}
	}
	return res, nil
}

func (s *Service) sweepOne(ctx context.Context, id types.ID) (Status, error) {
	unlock := s.locks.Lock(string(id))
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.Status != StatusPending {
		return p.Status, nil
	}
	now := s.now()
	if now.After(p.PickupTime) {
		return StatusExpired, s.transition(ctx, p, StatusExpired, nil)
	}
	if now.Before(p.PickupTime.Add(-s.cfg.LeadWindow)) {
		return StatusPending, nil
	}

	w, ok := s.wards.Get(p.Ward)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownWard, p.Ward)
	}
	if err := s.store.MarkAttempt(ctx, p.ID, now); err != nil {
		return "", err
	}
	r, err := s.rides.DispatchScheduled(ctx, ride.ScheduledCommand{
		PrebookingID: p.ID,
		RiderID:      p.RiderID,
		Ward:         p.Ward,
		Pickup:       w.Centroid,
		Destination:  p.Destination,
	})
	if errors.Is(err, ride.ErrNoDriversAvailable) {
		s.log.Info().Str("prebooking_id", p.ID.String()).Str("ward", p.Ward).Msg("no driver for prebooking yet")
		return StatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("dispatch: %w", err)
	}

	err = s.transition(ctx, p, StatusAssigned, func(t *Transition) {
		t.DriverID = r.DriverID
		t.RideID = &r.ID
	})
	if err != nil {
		// another replica moved the booking; give the driver back
		if _, cerr := s.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, ActorType: "scheduler", Reason: "prebooking changed during dispatch"}); cerr != nil {
			s.log.Error().Err(cerr).Str("ride_id", r.ID.String()).Msg("cancel orphaned scheduled ride")
		}
		return "", err
	}
	s.log.Info().
		Str("prebooking_id", p.ID.String()).
		Str("ride_id", r.ID.String()).
		Str("driver_id", r.DriverID.String()).
		Msg("prebooking assigned")
	return StatusAssigned, nil
}

// RunSweepTicker sweeps every SweepInterval until ctx is done.
func (s *Service) RunSweepTicker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("prebooking sweep failed")
				continue
			}
			if res.Assigned > 0 || res.Expired > 0 {
				s.log.Info().
					Int("assigned", res.Assigned).
					Int("expired", res.Expired).
					Int("waiting", res.Waiting).
					Msg("prebooking sweep")
			}
		}
	}
}

func (s *Service) transition(ctx context.Context, p *Prebooking, to Status, mutate func(*Transition)) error {
	if !CanTransition(p.Status, to) {
		return ErrInvalidState
	}
	t := Transition{ID: p.ID, From: p.Status, To: to, Version: p.StatusVersion, At: s.now()}
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
	metrics.PrebookingTransitions.WithLabelValues(string(to)).Inc()
	s.log.Debug().
		Str("prebooking_id", p.ID.String()).
		Str("from", string(p.Status)).
		Str("to", string(to)).
		Msg("prebooking transition")
	p.Status = to
	p.StatusVersion++
	return nil
}
