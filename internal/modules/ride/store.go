// README: Ride stores; in-memory and Postgres, both with status_version CAS and driver holds.
package ride

import (
	"context"
	"sort"
	"sync"
	"time"

	"yatri/internal/modules/matching"
	"yatri/internal/types"
)

// Transition is one compare-and-set status change. It applies only when the
// stored ride is still at From with Version.
type Transition struct {
	ID       types.ID
	From     Status
	To       Status
	Version  int
	DriverID *types.ID
	// Offers replaces the offered ranking when non-nil.
	Offers []matching.Ranked
	Reason *string
	At     time.Time
}

type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	UpdateStatus(ctx context.Context, t Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, rideID types.ID) ([]Event, error)
	ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error)

	// AcquireHold claims driverID for rideID. It reports false when another
	// ride holds the driver; re-acquiring for the same ride succeeds.
	AcquireHold(ctx context.Context, driverID, rideID types.ID) (bool, error)
	ReleaseHold(ctx context.Context, driverID, rideID types.ID) error
	HeldDrivers(ctx context.Context) (map[types.ID]bool, error)

	CountCompletedByDriver(ctx context.Context) (map[types.ID]int, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]*Ride
	events []Event
	holds  map[types.ID]types.ID
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides: make(map[types.ID]*Ride),
		holds: make(map[types.ID]types.ID),
	}
}

func cloneRide(r *Ride) *Ride {
	c := *r
	c.Offers = append([]matching.Ranked(nil), r.Offers...)
	return &c
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; ok {
		return ErrConflict
	}
	s.rides[r.ID] = cloneRide(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRide(r), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[t.ID]
	if !ok || r.Status != t.From || r.StatusVersion != t.Version {
		return false, nil
	}
	r.Status = t.To
	r.StatusVersion++
	if t.DriverID != nil {
		d := *t.DriverID
		r.DriverID = &d
	}
	if t.Offers != nil {
		r.Offers = append([]matching.Ranked(nil), t.Offers...)
	}
	if t.Reason != nil {
		reason := *t.Reason
		r.CancelReason = &reason
	}
	at := t.At
	switch t.To {
	case StatusOffered:
		r.OfferedAt = &at
	case StatusConfirmed:
		r.ConfirmedAt = &at
	case StatusInProgress:
		r.StartedAt = &at
	case StatusCompleted:
		r.CompletedAt = &at
	case StatusCancelled:
		r.CancelledAt = &at
	}
	return true, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev := *e
	ev.ID = s.seq
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, rideID types.ID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.RideID == rideID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) AcquireHold(_ context.Context, driverID, rideID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.holds[driverID]; ok {
		return held == rideID, nil
	}
	s.holds[driverID] = rideID
	return true, nil
}

func (s *MemoryStore) ReleaseHold(_ context.Context, driverID, rideID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holds[driverID] == rideID {
		delete(s.holds, driverID)
	}
	return nil
}

func (s *MemoryStore) HeldDrivers(_ context.Context) (map[types.ID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.ID]bool, len(s.holds))
	for d := range s.holds {
		out[d] = true
	}
	return out, nil
}

func (s *MemoryStore) CountCompletedByDriver(_ context.Context) (map[types.ID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.ID]int)
	for _, r := range s.rides {
		if r.Status == StatusCompleted && r.DriverID != nil {
			out[*r.DriverID]++
		}
	}
	return out, nil
}

// byCreated sorts rides oldest first.
func byCreated(rides []*Ride) {
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.Before(rides[j].CreatedAt) })
}

func (s *MemoryStore) ListByRider(_ context.Context, riderID types.ID) ([]*Ride, error) {
	s.mu.RLock()
	var out []*Ride
	for _, r := range s.rides {
		if r.RiderID == riderID {
			out = append(out, cloneRide(r))
		}
	}
	s.mu.RUnlock()
	byCreated(out)
	return out, nil
}
