// README: Driver price votes and the derived adjustment summary.
package pricing

import (
	"errors"
	"time"

	"yatri/internal/types"
)

var (
	ErrInvalidVote     = errors.New("vote direction must be +1 or -1")
	ErrInvalidDistance = errors.New("distance must be non-negative")
)

const (
	VoteUp   = 1
	VoteDown = -1
)

type Vote struct {
	DriverID  types.ID  `json:"driver_id"`
	Direction int       `json:"direction"`
	At        time.Time `json:"at"`
}

// Summary is the pricing state computed from in-window votes.
type Summary struct {
	Adjustment float64 `json:"adjustment"`
	Votes      int     `json:"votes"`
	Up         int     `json:"up"`
	Down       int     `json:"down"`
}

type Quote struct {
	Fare       types.Money `json:"fare"`
	DistanceKm float64     `json:"distance_km"`
	Adjustment float64     `json:"adjustment"`
}
