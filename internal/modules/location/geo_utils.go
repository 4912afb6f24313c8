// README: ordering helpers shared by the driver position index.
package location

import (
	"cmp"
	"strings"
)

// compareHits orders nearest first, ties by driver id.
func compareHits(a, b Hit) int {
	if c := cmp.Compare(a.DistanceKm, b.DistanceKm); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}
