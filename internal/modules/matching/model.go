// README: Driver profile and ranked candidate definitions.
package matching

import (
	"errors"
	"time"

	"yatri/internal/types"
)

var (
	ErrDriverNotFound = errors.New("driver not found")
	ErrInvalidDriver  = errors.New("invalid driver profile")
)

type Driver struct {
	ID                 types.ID    `json:"id"`
	Name               string      `json:"name"`
	Location           types.Point `json:"location"`
	Available          bool        `json:"available"`
	ExperienceMonths   int         `json:"experience_months"`
	BaseAcceptanceRate float64     `json:"base_acceptance_rate"`
	PeakAcceptanceRate float64     `json:"peak_acceptance_rate"`
	Rating             float64     `json:"rating"`
	VehicleType        string      `json:"vehicle_type"`
	PrimaryWard        string      `json:"primary_ward"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (d Driver) Validate() error {
	switch {
	case d.ID == "":
		return ErrInvalidDriver
	case !d.Location.Valid():
		return ErrInvalidDriver
	case d.ExperienceMonths < 0:
		return ErrInvalidDriver
	case d.BaseAcceptanceRate < 0 || d.BaseAcceptanceRate > 1:
		return ErrInvalidDriver
	case d.PeakAcceptanceRate < 0 || d.PeakAcceptanceRate > 1:
		return ErrInvalidDriver
	case d.Rating < 0 || d.Rating > 5:
		return ErrInvalidDriver
	}
	return nil
}

// Ranked is one scored candidate. Scores across a ranking sum to at most 1.
type Ranked struct {
	DriverID   types.ID `json:"driver_id"`
	Score      float64  `json:"score"`
	DistanceKm float64  `json:"distance_km"`
}
