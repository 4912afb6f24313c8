// README: Ward definitions and the immutable adjacency graph.
package ward

import (
	"errors"

	"yatri/internal/types"
)

var (
	ErrUnknownWard   = errors.New("unknown ward")
	ErrDuplicateWard = errors.New("duplicate ward")
	ErrEmptyGraph    = errors.New("ward graph is empty")
)

type Ward struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Centroid types.Point `json:"centroid"`
	Adjacent []string    `json:"adjacent"`
}
