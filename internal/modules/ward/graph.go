// README: Ward graph; lookups, nearest-centroid location and BFS paths.
package ward

import (
	"fmt"
	"slices"
	"sort"

	"yatri/internal/config"
	"yatri/internal/types"
)

// Graph is read-only after construction and safe for concurrent use.
type Graph struct {
	wards map[string]Ward
	ids   []string
}

// NewGraph validates wards and makes adjacency symmetric.
func NewGraph(wards []Ward) (*Graph, error) {
	if len(wards) == 0 {
		return nil, ErrEmptyGraph
	}
	g := &Graph{wards: make(map[string]Ward, len(wards))}
	adj := make(map[string]map[string]struct{}, len(wards))
	for _, w := range wards {
		if w.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrUnknownWard)
		}
		if _, ok := g.wards[w.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWard, w.ID)
		}
		g.wards[w.ID] = w
		adj[w.ID] = make(map[string]struct{})
		g.ids = append(g.ids, w.ID)
	}
	for _, w := range wards {
		for _, n := range w.Adjacent {
			if _, ok := g.wards[n]; !ok {
				return nil, fmt.Errorf("%w: %s lists neighbour %s", ErrUnknownWard, w.ID, n)
			}
			if n == w.ID {
				continue
			}
			adj[w.ID][n] = struct{}{}
			adj[n][w.ID] = struct{}{}
		}
	}
	for id, set := range adj {
		w := g.wards[id]
		w.Adjacent = make([]string, 0, len(set))
		for n := range set {
			w.Adjacent = append(w.Adjacent, n)
		}
		sort.Strings(w.Adjacent)
		g.wards[id] = w
	}
	sort.Strings(g.ids)
	return g, nil
}

func FromConfig(wards []config.WardConfig) (*Graph, error) {
	list := make([]Ward, 0, len(wards))
	for _, w := range wards {
		name := w.Name
		if name == "" {
			name = w.ID
		}
		list = append(list, Ward{
			ID:       w.ID,
			Name:     name,
			Centroid: types.Point{Lat: w.Lat, Lng: w.Lng},
			Adjacent: w.Adjacent,
		})
	}
	return NewGraph(list)
}

func (g *Graph) Has(id string) bool {
	_, ok := g.wards[id]
	return ok
}

func (g *Graph) Get(id string) (Ward, bool) {
	w, ok := g.wards[id]
	return w, ok
}

// IDs returns ward ids in ascending order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

func (g *Graph) Wards() []Ward {
	out := make([]Ward, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.wards[id])
	}
	return out
}

func (g *Graph) Neighbors(id string) []string {
	return g.wards[id].Adjacent
}

// Locate returns the ward whose centroid is closest to p.
func (g *Graph) Locate(p types.Point) string {
	best := ""
	bestDist := 0.0
	for _, id := range g.ids {
		d := g.wards[id].Centroid.DistanceKm(p)
		if best == "" || d < bestDist {
			best, bestDist = id, d
		}
	}
	return best
}

// Hops runs a BFS from src and returns hop counts and BFS parents. Neighbours
// are expanded in id order, so parent chains are deterministic.
func (g *Graph) Hops(src string) (map[string]int, map[string]string) {
	dist := map[string]int{src: 0}
	parent := map[string]string{}
	if !g.Has(src) {
		return map[string]int{}, parent
	}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.wards[cur].Adjacent {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			parent[n] = cur
			queue = append(queue, n)
		}
	}
	return dist, parent
}

// PathFromHops rebuilds the src..dst path from the parents returned by Hops.
// dst must be reachable from src.
func PathFromHops(parent map[string]string, src, dst string) []string {
	path := []string{dst}
	for cur := dst; cur != src; {
		cur = parent[cur]
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path
}
