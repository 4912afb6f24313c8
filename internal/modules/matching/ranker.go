// README: Weighted driver ranking over distance, acceptance and experience.
package matching

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"yatri/internal/config"
	"yatri/internal/types"
)

type Ranker struct {
	weights  config.RankWeights
	radiusKm float64
}

func NewRanker(cfg config.MatchingConfig) Ranker {
	return Ranker{weights: cfg.Weights, radiusKm: cfg.RadiusKm}
}

// WithRadius returns a copy of r using a different search radius.
func (r Ranker) WithRadius(km float64) Ranker {
	r.radiusKm = km
	return r
}

// Rank scores available drivers within the radius of pickup:
//
//	raw = w_dist * (1/(1+d)) / max(1/(1+d)) + w_accept * rate + w_exp * months / max(months)
//
// where rate is the peak acceptance rate during peak hours. Raw scores are
// divided by their sum, so the order is kept and every score is in [0, 1].
// Ties go to the lower driver id.
func (r Ranker) Rank(pickup types.Point, candidates []Driver, peak bool) []Ranked {
	eligible := make([]Driver, 0, len(candidates))
	dists := make([]float64, 0, len(candidates))
	for _, d := range candidates {
		if !d.Available || !d.Location.Valid() {
			continue
		}
		km := pickup.DistanceKm(d.Location)
		if km > r.radiusKm {
			continue
		}
		eligible = append(eligible, d)
		dists = append(dists, km)
	}
	if len(eligible) == 0 {
		return []Ranked{}
	}

	n := len(eligible)
	proximity := make([]float64, n)
	acceptance := make([]float64, n)
	experience := make([]float64, n)
	for i, d := range eligible {
		proximity[i] = 1 / (1 + dists[i])
		rate := d.BaseAcceptanceRate
		if peak {
			rate = d.PeakAcceptanceRate
		}
		acceptance[i] = math.Min(math.Max(rate, 0), 1)
		experience[i] = float64(max(d.ExperienceMonths, 0))
	}
	floats.Scale(1/floats.Max(proximity), proximity)
	if maxExp := floats.Max(experience); maxExp > 0 {
		floats.Scale(1/maxExp, experience)
	}

	raw := make([]float64, n)
	floats.AddScaled(raw, r.weights.Distance, proximity)
	floats.AddScaled(raw, r.weights.Acceptance, acceptance)
	floats.AddScaled(raw, r.weights.Experience, experience)
	if total := floats.Sum(raw); total > 0 {
		floats.Scale(1/total, raw)
	}

	out := make([]Ranked, n)
	for i, d := range eligible {
		out[i] = Ranked{DriverID: d.ID, Score: raw[i], DistanceKm: dists[i]}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out
}
