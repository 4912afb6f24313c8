// README: Ride aggregate, status definitions and the transition table.
package ride

import (
	"time"

	"yatri/internal/modules/matching"
	"yatri/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusRequested  Status = "requested"
	StatusOffered    Status = "offered"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Ride struct {
	ID            types.ID          `json:"id"`
	RiderID       types.ID          `json:"rider_id"`
	DriverID      *types.ID         `json:"driver_id,omitempty"`
	Status        Status            `json:"status"`
	StatusVersion int               `json:"status_version"`
	Pickup        types.Point       `json:"pickup"`
	Destination   types.Point       `json:"destination"`
	PickupWard    string            `json:"pickup_ward"`
	Fare          types.Money       `json:"fare"`
	DistanceKm    float64           `json:"distance_km"`
	Duration      time.Duration     `json:"duration"`
	Polyline      string            `json:"polyline,omitempty"`
	Offers        []matching.Ranked `json:"offers"`
	PrebookingID  *types.ID         `json:"prebooking_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	OfferedAt     *time.Time        `json:"offered_at,omitempty"`
	ConfirmedAt   *time.Time        `json:"confirmed_at,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason  *string           `json:"cancel_reason,omitempty"`
}

// Offered reports whether driverID is in the last offered ranking.
func (r *Ride) Offered(driverID types.ID) bool {
	for _, o := range r.Offers {
		if o.DriverID == driverID {
			return true
		}
	}
	return false
}

type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AllowedTransitions represents the ride state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:  {StatusOffered, StatusCancelled},
	StatusOffered:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
