// README: Ward route planner; BFS from each quiet ward to the closest busy ward.
package rebalance

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"yatri/internal/modules/demand"
	"yatri/internal/modules/ward"
)

// PlanRoutes returns one route per low-demand ward to its nearest high-demand
// ward by hop count. Equal hop counts go to the lower destination id.
func PlanRoutes(c demand.Classification, g *ward.Graph) Plan {
	plan := Plan{Classification: c, Routes: []Route{}, Unreachable: []string{}}
	for _, origin := range c.LowDemandWards {
		dist, parent := g.Hops(origin)
		best := ""
		for _, dst := range c.HighDemandWards {
			d, ok := dist[dst]
			if !ok {
				continue
			}
			if best == "" || d < dist[best] || (d == dist[best] && dst < best) {
				best = dst
			}
		}
		if best == "" {
			plan.Unreachable = append(plan.Unreachable, origin)
			continue
		}
		plan.Routes = append(plan.Routes, Route{
			Origin:      origin,
			Destination: best,
			Path:        ward.PathFromHops(parent, origin, best),
			Hops:        dist[best],
		})
	}
	return plan
}

type Classifier interface {
	Current(ctx context.Context) (demand.Classification, error)
}

// Planner caches the last plan and rebuilds it only when the classification
// changes.
type Planner struct {
	demand Classifier
	graph  *ward.Graph
	log    zerolog.Logger

	mu     sync.Mutex
	plan   Plan
	cached bool
}

func NewPlanner(d Classifier, g *ward.Graph, log zerolog.Logger) *Planner {
	return &Planner{demand: d, graph: g, log: log.With().Str("module", "rebalance").Logger()}
}

func (p *Planner) Current(ctx context.Context) (Plan, error) {
	c, err := p.demand.Current(ctx)
	if err != nil {
		return Plan{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached && p.plan.Classification.Equal(c) {
		return p.plan, nil
	}
	p.plan = PlanRoutes(c, p.graph)
	p.cached = true
	p.log.Info().
		Int("routes", len(p.plan.Routes)).
		Strs("unreachable", p.plan.Unreachable).
		Msg("rebalance plan recomputed")
	return p.plan, nil
}
