// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yatri/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `id, rider_id, driver_id, status, status_version,
	pickup_lat, pickup_lng, dest_lat, dest_lng, pickup_ward,
	fare_amount, fare_currency, distance_km, duration_ms, polyline, offers, prebooking_id,
	created_at, offered_at, confirmed_at, started_at, completed_at, cancelled_at, cancellation_reason`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	offers, err := json.Marshal(r.Offers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (
			id, rider_id, driver_id, status, status_version,
			pickup_lat, pickup_lng, dest_lat, dest_lng, pickup_ward,
			fare_amount, fare_currency, distance_km, duration_ms, polyline, offers, prebooking_id,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17,
			$18
		)`,
		string(r.ID), string(r.RiderID), toStringPtr(r.DriverID), string(r.Status), r.StatusVersion,
		r.Pickup.Lat, r.Pickup.Lng, r.Destination.Lat, r.Destination.Lng, r.PickupWard,
		r.Fare.Amount, r.Fare.Currency, r.DistanceKm, r.Duration.Milliseconds(), r.Polyline, offers, toStringPtr(r.PrebookingID),
		r.CreatedAt,
	)
	return err
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID, prebookingID, cancelReason sql.NullString
	var durationMs int64
	var offers []byte
	var offeredAt, confirmedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Status, &r.StatusVersion,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Destination.Lat, &r.Destination.Lng, &r.PickupWard,
		&r.Fare.Amount, &r.Fare.Currency, &r.DistanceKm, &durationMs, &r.Polyline, &offers, &prebookingID,
		&r.CreatedAt, &offeredAt, &confirmedAt, &startedAt, &completedAt, &cancelledAt, &cancelReason,
	)
	if err != nil {
		return nil, err
	}
	r.DriverID = toIDPtr(driverID)
	r.PrebookingID = toIDPtr(prebookingID)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if len(offers) > 0 {
		if err := json.Unmarshal(offers, &r.Offers); err != nil {
			return nil, err
		}
	}
	r.OfferedAt = toTimePtr(offeredAt)
	r.ConfirmedAt = toTimePtr(confirmedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		r.CancelReason = &cancelReason.String
	}
	return &r, nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PGStore) ListByRider(ctx context.Context, riderID types.ID) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `SELECT `+rideColumns+` FROM rides WHERE rider_id = $1 ORDER BY created_at`, string(riderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateStatus(ctx context.Context, t Transition) (bool, error) {
	var offers []byte
	if t.Offers != nil {
		b, err := json.Marshal(t.Offers)
		if err != nil {
			return false, err
		}
		offers = b
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			status_version = status_version + 1,
			driver_id = COALESCE($2, driver_id),
			offers = COALESCE($3::jsonb, offers),
			cancellation_reason = COALESCE($4, cancellation_reason),
			offered_at = CASE WHEN $1 = 'offered' THEN $5::timestamptz ELSE offered_at END,
			confirmed_at = CASE WHEN $1 = 'confirmed' THEN $5::timestamptz ELSE confirmed_at END,
			started_at = CASE WHEN $1 = 'in_progress' THEN $5::timestamptz ELSE started_at END,
			completed_at = CASE WHEN $1 = 'completed' THEN $5::timestamptz ELSE completed_at END,
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN $5::timestamptz ELSE cancelled_at END
		WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(t.To),
		toStringPtr(t.DriverID),
		offers,
		t.Reason,
		t.At,
		string(t.ID),
		string(t.From),
		t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *PGStore) Events(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		FROM ride_state_events WHERE ride_id = $1 ORDER BY id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var actor sql.NullString
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toIDPtr(actor)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) AcquireHold(ctx context.Context, driverID, rideID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO driver_holds (driver_id, ride_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (driver_id) DO UPDATE SET ride_id = driver_holds.ride_id
		WHERE driver_holds.ride_id = EXCLUDED.ride_id`,
		string(driverID), string(rideID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ReleaseHold(ctx context.Context, driverID, rideID types.ID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM driver_holds WHERE driver_id = $1 AND ride_id = $2`, string(driverID), string(rideID))
	return err
}

func (s *PGStore) HeldDrivers(ctx context.Context) (map[types.ID]bool, error) {
	rows, err := s.db.Query(ctx, `SELECT driver_id FROM driver_holds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[types.ID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[types.ID(id)] = true
	}
	return out, rows.Err()
}

func (s *PGStore) CountCompletedByDriver(ctx context.Context) (map[types.ID]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, COUNT(*) FROM rides
		WHERE status = 'completed' AND driver_id IS NOT NULL
		GROUP BY driver_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[types.ID]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[types.ID(id)] = n
	}
	return out, rows.Err()
}

func toStringPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

var (
	_ Store = (*PGStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
