// README: Prebooking stores; in-memory and Postgres, both CAS on status_version.
package prebooking

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yatri/internal/types"
)

// Transition applies only while the stored booking is still at From with Version.
type Transition struct {
	ID       types.ID
	From     Status
	To       Status
	Version  int
	DriverID *types.ID
	RideID   *types.ID
	Penalty  bool
	At       time.Time
}

type Store interface {
	Create(ctx context.Context, p *Prebooking) error
	Get(ctx context.Context, id types.ID) (*Prebooking, error)
	UpdateStatus(ctx context.Context, t Transition) (bool, error)
	MarkAttempt(ctx context.Context, id types.ID, at time.Time) error
	ListPending(ctx context.Context) ([]*Prebooking, error)
	ListByRider(ctx context.Context, riderID types.ID) ([]*Prebooking, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	items map[types.ID]*Prebooking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[types.ID]*Prebooking)}
}

func clone(p *Prebooking) *Prebooking {
	cp := *p
	return &cp
}

func byPickup(items []*Prebooking) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].PickupTime.Equal(items[j].PickupTime) {
			return items[i].PickupTime.Before(items[j].PickupTime)
		}
		return items[i].ID < items[j].ID
	})
}

func (s *MemoryStore) Create(_ context.Context, p *Prebooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.ID]; ok {
		return ErrConflict
	}
	s.items[p.ID] = clone(p)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Prebooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[t.ID]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != t.From || p.StatusVersion != t.Version {
		return false, nil
	}
	p.Status = t.To
	p.StatusVersion++
	p.UpdatedAt = t.At
	if t.DriverID != nil {
		p.DriverID = t.DriverID
	}
	if t.RideID != nil {
		p.RideID = t.RideID
	}
	if t.Penalty {
		p.CancellationPenalty = true
	}
	return true, nil
}

func (s *MemoryStore) MarkAttempt(_ context.Context, id types.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	p.LastAttemptAt = &at
	p.UpdatedAt = at
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*Prebooking, error) {
	s.mu.RLock()
	var out []*Prebooking
	for _, p := range s.items {
		if p.Status == StatusPending {
			out = append(out, clone(p))
		}
	}
	s.mu.RUnlock()
	byPickup(out)
	return out, nil
}

func (s *MemoryStore) ListByRider(_ context.Context, riderID types.ID) ([]*Prebooking, error) {
	s.mu.RLock()
	var out []*Prebooking
	for _, p := range s.items {
		if p.RiderID == riderID {
			out = append(out, clone(p))
		}
	}
	s.mu.RUnlock()
	byPickup(out)
	return out, nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const columns = `id, rider_id, ward_id, pickup_time, status, status_version,
	driver_id, ride_id, dest_lat, dest_lng, cancellation_penalty, last_attempt_at,
	created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, p *Prebooking) error {
	var lat, lng *float64
	if p.Destination != nil {
		lat, lng = &p.Destination.Lat, &p.Destination.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO prebookings (
			id, rider_id, ward_id, pickup_time, status, status_version,
			dest_lat, dest_lng, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(p.ID), string(p.RiderID), p.Ward, p.PickupTime, string(p.Status), p.StatusVersion,
		lat, lng, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func scan(row pgx.Row) (*Prebooking, error) {
	var p Prebooking
	var driverID, rideID sql.NullString
	var lat, lng sql.NullFloat64
	var lastAttempt sql.NullTime
	err := row.Scan(
		&p.ID, &p.RiderID, &p.Ward, &p.PickupTime, &p.Status, &p.StatusVersion,
		&driverID, &rideID, &lat, &lng, &p.CancellationPenalty, &lastAttempt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		id := types.ID(driverID.String)
		p.DriverID = &id
	}
	if rideID.Valid {
		id := types.ID(rideID.String)
		p.RideID = &id
	}
	if lat.Valid && lng.Valid {
		p.Destination = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		p.LastAttemptAt = &t
	}
	return &p, nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Prebooking, error) {
	p, err := scan(s.db.QueryRow(ctx, `SELECT `+columns+` FROM prebookings WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PGStore) UpdateStatus(ctx context.Context, t Transition) (bool, error) {
	var driverID, rideID *string
	if t.DriverID != nil {
		v := string(*t.DriverID)
		driverID = &v
	}
	if t.RideID != nil {
		v := string(*t.RideID)
		rideID = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE prebookings
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE($2, driver_id),
		    ride_id = COALESCE($3, ride_id),
		    cancellation_penalty = cancellation_penalty OR $4,
		    updated_at = $5
		WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(t.To), driverID, rideID, t.Penalty, t.At,
		string(t.ID), string(t.From), t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) MarkAttempt(ctx context.Context, id types.ID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE prebookings SET last_attempt_at = $1, updated_at = $1 WHERE id = $2`, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]*Prebooking, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Prebooking
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) ListPending(ctx context.Context) ([]*Prebooking, error) {
	return s.list(ctx, `SELECT `+columns+` FROM prebookings WHERE status = $1 ORDER BY pickup_time, id`, string(StatusPending))
}

func (s *PGStore) ListByRider(ctx context.Context, riderID types.ID) ([]*Prebooking, error) {
	return s.list(ctx, `SELECT `+columns+` FROM prebookings WHERE rider_id = $1 ORDER BY pickup_time, id`, string(riderID))
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PGStore)(nil)
)
