package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"yatri/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// Route is the road-level estimate for one trip.
type Route struct {
	DistanceKm float64       `json:"distance_km"`
	Duration   time.Duration `json:"duration"`
	Polyline   string        `json:"polyline,omitempty"`
}

// Router computes a trip estimate. Callers bound the call with ctx.
type Router interface {
	Route(ctx context.Context, from, to types.Point) (Route, error)
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route asks the Directions API for a driving route and sums its legs.
func (s *RouteService) Route(ctx context.Context, from, to types.Point) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      "in",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}

	out := Route{Polyline: routes[0].OverviewPolyline.Points}
	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
		out.Duration += leg.Duration
	}
	out.DistanceKm = float64(meters) / 1000
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// StraightLineRouter estimates routes from great-circle distance. It is used
// when no maps API key is configured.
type StraightLineRouter struct {
	SpeedKmh float64
}

func (s StraightLineRouter) Route(ctx context.Context, from, to types.Point) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	km := from.DistanceKm(to)
	speed := s.SpeedKmh
	if speed <= 0 {
		speed = 24
	}
	return Route{
		DistanceKm: km,
		Duration:   time.Duration(km / speed * float64(time.Hour)).Round(time.Second),
	}, nil
}
