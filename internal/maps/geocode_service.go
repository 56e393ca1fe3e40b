package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"linehaul/internal/types"
)

// GeocodeResult is a candidate coordinate for a free-text address query.
type GeocodeResult struct {
	Address  string
	Position types.Point
}

// Geocode resolves a free-text query to candidate coordinates.
// With no client configured it returns an empty candidate list; the caller
// treats address search as best-effort.
func (s *RouteService) Geocode(ctx context.Context, query string) ([]GeocodeResult, error) {
	if s.client == nil {
		return nil, nil
	}
	resp, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		return nil, fmt.Errorf("geocode api error: %w", err)
	}

	results := make([]GeocodeResult, 0, len(resp))
	for _, r := range resp {
		results = append(results, GeocodeResult{
			Address: r.FormattedAddress,
			Position: types.Point{
				Lat: r.Geometry.Location.Lat,
				Lng: r.Geometry.Location.Lng,
			},
		})
	}
	return results, nil
}
