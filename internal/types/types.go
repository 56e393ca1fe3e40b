// README: Shared identifier and geo primitives used across modules.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a random entity identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is inside the WGS84 coordinate range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
