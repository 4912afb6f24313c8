// README: Demand counters per (ward, hour) and the derived classification.
package demand

import (
	"errors"
	"slices"
)

var (
	ErrInvalidHour = errors.New("hour must be in 0..23")
	ErrUnknownWard = errors.New("unknown ward")
)

// Cell is one (ward, hour) counter.
type Cell struct {
	Ward  string `json:"ward"`
	Hour  int    `json:"hour"`
	Count int64  `json:"count"`
}

// Classification is derived from the counters on every read; it is never stored.
type Classification struct {
	PeakHours       []int    `json:"peak_hours"`
	HighDemandWards []string `json:"high_demand_wards"`
	LowDemandWards  []string `json:"low_demand_wards"`
}

func (c Classification) Equal(o Classification) bool {
	return slices.Equal(c.PeakHours, o.PeakHours) &&
		slices.Equal(c.HighDemandWards, o.HighDemandWards) &&
		slices.Equal(c.LowDemandWards, o.LowDemandWards)
}

func (c Classification) IsHigh(ward string) bool {
	return slices.Contains(c.HighDemandWards, ward)
}
