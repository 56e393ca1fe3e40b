// README: OngoingTrip projection: the live-tracking view of an active trip.
package tracking

import (
	"time"

	"linehaul/internal/types"
)

// Ongoing is a projection, not a source of truth: progress is a cache
// refreshed on every delivery event, and the record exists only between
// trip acceptance and completion or decline.
type Ongoing struct {
	TripID   types.ID
	DriverID types.ID
	Position types.Point
	Address  string
	// HasFix reports whether any location report has arrived yet.
	HasFix    bool
	Progress  int
	SOS       bool
	UpdatedAt time.Time
}

// Update is the payload published on the per-trip broadcast channel.
// Polling GetOngoing remains the read contract; the channel is additive.
type Update struct {
	TripID   types.ID    `json:"trip_id"`
	Kind     string      `json:"kind"` // location | progress | sos | closed
	Position types.Point `json:"position"`
	Address  string      `json:"address,omitempty"`
	Progress int         `json:"progress"`
	SOS      bool        `json:"sos"`
	At       time.Time   `json:"at"`
}
