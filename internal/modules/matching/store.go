// README: Driver directory stores; in-memory and Postgres (drivers table).
package matching

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yatri/internal/types"
)

type Store interface {
	Upsert(ctx context.Context, d Driver) error
	Get(ctx context.Context, id types.ID) (Driver, error)
	ListByIDs(ctx context.Context, ids []types.ID) ([]Driver, error)
	ListAvailable(ctx context.Context) ([]Driver, error)
	List(ctx context.Context) ([]Driver, error)
	SetAvailability(ctx context.Context, id types.ID, available bool) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[types.ID]Driver
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drivers: make(map[types.ID]Driver)}
}

func (s *MemoryStore) Upsert(_ context.Context, d Driver) error {
	s.mu.Lock()
	d.UpdatedAt = time.Now()
	s.drivers[d.ID] = d
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return Driver{}, ErrDriverNotFound
	}
	return d, nil
}

func (s *MemoryStore) ListByIDs(_ context.Context, ids []types.ID) ([]Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Driver, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.drivers[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAvailable(ctx context.Context) ([]Driver, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if d.Available {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Driver, error) {
	s.mu.RLock()
	out := make([]Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetAvailability(_ context.Context, id types.ID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.Available = available
	d.UpdatedAt = time.Now()
	s.drivers[id] = d
	return nil
}

func (s *MemoryStore) UpdateLocation(_ context.Context, id types.ID, p types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.Location = p
	d.UpdatedAt = time.Now()
	s.drivers[id] = d
	return nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const driverColumns = `id, name, lat, lng, available, experience_months,
	base_acceptance_rate, peak_acceptance_rate, rating, vehicle_type, primary_ward, updated_at`

func (s *PGStore) Upsert(ctx context.Context, d Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			available = EXCLUDED.available,
			experience_months = EXCLUDED.experience_months,
			base_acceptance_rate = EXCLUDED.base_acceptance_rate,
			peak_acceptance_rate = EXCLUDED.peak_acceptance_rate,
			rating = EXCLUDED.rating,
			vehicle_type = EXCLUDED.vehicle_type,
			primary_ward = EXCLUDED.primary_ward,
			updated_at = NOW()`,
		string(d.ID), d.Name, d.Location.Lat, d.Location.Lng, d.Available, d.ExperienceMonths,
		d.BaseAcceptanceRate, d.PeakAcceptanceRate, d.Rating, d.VehicleType, d.PrimaryWard,
	)
	return err
}

func scanDriver(row pgx.Row) (Driver, error) {
	var d Driver
	err := row.Scan(
		&d.ID, &d.Name, &d.Location.Lat, &d.Location.Lng, &d.Available, &d.ExperienceMonths,
		&d.BaseAcceptanceRate, &d.PeakAcceptanceRate, &d.Rating, &d.VehicleType, &d.PrimaryWard, &d.UpdatedAt,
	)
	return d, err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (Driver, error) {
	d, err := scanDriver(s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Driver{}, ErrDriverNotFound
	}
	return d, err
}

func (s *PGStore) query(ctx context.Context, sql string, args ...any) ([]Driver, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) ListByIDs(ctx context.Context, ids []types.ID) ([]Driver, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	return s.query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ANY($1)`, raw)
}

func (s *PGStore) ListAvailable(ctx context.Context) ([]Driver, error) {
	return s.query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE available ORDER BY id`)
}

func (s *PGStore) List(ctx context.Context) ([]Driver, error) {
	return s.query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY id`)
}

func (s *PGStore) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET available = $1, updated_at = NOW() WHERE id = $2`, available, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

func (s *PGStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET lat = $1, lng = $2, updated_at = NOW() WHERE id = $3`, p.Lat, p.Lng, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}
