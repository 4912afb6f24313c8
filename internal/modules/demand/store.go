// README: Demand counter stores; in-memory and Postgres (demand_snapshots).
package demand

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	Increment(ctx context.Context, ward string, hour int) error
	Snapshot(ctx context.Context) ([]Cell, error)
}

type cellKey struct {
	ward string
	hour int
}

type MemoryStore struct {
	mu     sync.RWMutex
	counts map[cellKey]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[cellKey]int64)}
}

func (s *MemoryStore) Increment(_ context.Context, ward string, hour int) error {
	s.mu.Lock()
	s.counts[cellKey{ward, hour}]++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context) ([]Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cell, 0, len(s.counts))
	for k, v := range s.counts {
		out = append(out, Cell{Ward: k.ward, Hour: k.hour, Count: v})
	}
	return out, nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Increment(ctx context.Context, ward string, hour int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO demand_snapshots (ward_id, hour, request_count, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (ward_id, hour)
		DO UPDATE SET request_count = demand_snapshots.request_count + 1,
		              updated_at = NOW()`,
		ward, hour,
	)
	return err
}

func (s *PGStore) Snapshot(ctx context.Context) ([]Cell, error) {
	rows, err := s.db.Query(ctx, `SELECT ward_id, hour, request_count FROM demand_snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cell
	for rows.Next() {
		var c Cell
		if err := rows.Scan(&c.Ward, &c.Hour, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
