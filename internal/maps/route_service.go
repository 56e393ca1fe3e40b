package maps

import (
	"context"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"linehaul/internal/types"
)

// RouteSummary describes an estimated delivery run across ordered stops.
type RouteSummary struct {
	// Polyline is the encoded overview path; empty when estimated locally.
	Polyline  string
	DistanceM int
	DurationS int
	// Estimated is true when the external provider was unavailable and the
	// summary is a straight-line fallback.
	Estimated bool
}

// RouteService wraps the Google Maps Directions API. A nil client is valid
// and always produces straight-line estimates; provider failures fall back
// the same way and never surface an error to the caller's operation.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService with the given API key.
// An empty key returns a fallback-only service.
func NewRouteService(apiKey string) (*RouteService, error) {
	if apiKey == "" {
		return &RouteService{}, nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// EstimateRoute returns a route summary from start through each stop in order.
func (s *RouteService) EstimateRoute(ctx context.Context, start types.Point, stops []types.Point) (RouteSummary, error) {
	if len(stops) == 0 {
		return RouteSummary{Estimated: true}, nil
	}
	if s.client == nil {
		return straightLine(start, stops), nil
	}

	last := stops[len(stops)-1]
	r := &maps.DirectionsRequest{
		Origin:      latLng(start),
		Destination: latLng(last),
		Mode:        maps.TravelModeDriving,
	}
	for _, p := range stops[:len(stops)-1] {
		r.Waypoints = append(r.Waypoints, latLng(p))
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil || len(routes) == 0 {
		return straightLine(start, stops), nil
	}

	var distM, durS int
	for _, leg := range routes[0].Legs {
		distM += leg.Distance.Meters
		durS += int(leg.Duration.Seconds())
	}
	return RouteSummary{
		Polyline:  routes[0].OverviewPolyline.Points,
		DistanceM: distM,
		DurationS: durS,
	}, nil
}

// straightLine sums great-circle distances through the stop sequence and
// assumes a 30 km/h average speed for the duration estimate.
func straightLine(start types.Point, stops []types.Point) RouteSummary {
	const avgSpeedKmh = 30.0
	totalKm := 0.0
	prev := start
	for _, p := range stops {
		totalKm += haversineKm(prev, p)
		prev = p
	}
	return RouteSummary{
		DistanceM: int(totalKm * 1000),
		DurationS: int(totalKm / avgSpeedKmh * 3600),
		Estimated: true,
	}
}

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
