package maps

import (
	"context"
	"math"
	"testing"

	"linehaul/internal/types"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Taipei Main Station to Taipei 101, roughly 4 km apart.
	a := types.Point{Lat: 25.0478, Lng: 121.5170}
	b := types.Point{Lat: 25.0330, Lng: 121.5654}

	got := haversineKm(a, b)
	if math.Abs(got-5.15) > 0.5 {
		t.Errorf("haversineKm = %.2f km, want ~5 km", got)
	}

	if d := haversineKm(a, a); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
}

func TestEstimateRouteFallback(t *testing.T) {
	svc, err := NewRouteService("")
	if err != nil {
		t.Fatalf("new route service: %v", err)
	}

	start := types.Point{Lat: 25.0478, Lng: 121.5170}
	stops := []types.Point{
		{Lat: 25.0330, Lng: 121.5654},
		{Lat: 25.0695, Lng: 121.5770},
	}
	sum, err := svc.EstimateRoute(context.Background(), start, stops)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !sum.Estimated {
		t.Error("keyless service must mark estimates")
	}
	if sum.Polyline != "" {
		t.Error("straight-line estimate has no polyline")
	}
	if sum.DistanceM <= 0 || sum.DurationS <= 0 {
		t.Errorf("estimate = %dm / %ds, want positive", sum.DistanceM, sum.DurationS)
	}
	// 30 km/h average: duration in seconds is distance in metres * 0.12.
	wantDur := float64(sum.DistanceM) / 1000 / 30 * 3600
	if math.Abs(float64(sum.DurationS)-wantDur) > 1 {
		t.Errorf("duration = %ds, want ~%.0fs at 30 km/h", sum.DurationS, wantDur)
	}
}

func TestEstimateRouteNoStops(t *testing.T) {
	svc, _ := NewRouteService("")
	sum, err := svc.EstimateRoute(context.Background(), types.Point{Lat: 25.03, Lng: 121.56}, nil)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if sum.DistanceM != 0 || !sum.Estimated {
		t.Errorf("empty route = %+v", sum)
	}
}

func TestGeocodeWithoutClient(t *testing.T) {
	svc, _ := NewRouteService("")
	results, err := svc.Geocode(context.Background(), "somewhere")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("keyless geocode returned %d results", len(results))
	}
}
