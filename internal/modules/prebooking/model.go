// README: Prebooking aggregate and its state flow.
package prebooking

import (
	"time"

	"yatri/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

type Prebooking struct {
	ID                  types.ID     `json:"id"`
	RiderID             types.ID     `json:"rider_id"`
	Ward                string       `json:"ward"`
	PickupTime          time.Time    `json:"pickup_time"`
	Status              Status       `json:"status"`
	StatusVersion       int          `json:"status_version"`
	DriverID            *types.ID    `json:"driver_id,omitempty"`
	RideID              *types.ID    `json:"ride_id,omitempty"`
	Destination         *types.Point `json:"destination,omitempty"`
	CancellationPenalty bool         `json:"cancellation_penalty"`
	LastAttemptAt       *time.Time   `json:"last_attempt_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// AllowedTransitions: assigned bookings hand over to the ride lifecycle and
// can only be cancelled from here.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled, StatusExpired},
	StatusAssigned: {StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Message is published to the ward queue when a booking is created.
type Message struct {
	PrebookingID types.ID  `json:"prebooking_id"`
	RiderID      types.ID  `json:"rider_id"`
	Ward         string    `json:"ward"`
	PickupTime   time.Time `json:"pickup_time"`
}

func QueueName(ward string) string {
	return "prebook_" + ward
}
