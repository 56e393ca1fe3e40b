// README: Trip aggregate, status definitions, and the lifecycle transition table.
package trip

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"linehaul/internal/maps"
	"linehaul/internal/types"
)

type Status string

const (
	StatusNone Status = "none"
	// StatusPending models "offer sent, not yet committed": the driver and
	// vehicle are not marked on-trip until acceptance, so a decline leaves
	// no stale on-trip state behind.
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusDeclined   Status = "declined"
	StatusCompleted  Status = "completed"
)

type Trip struct {
	ID types.ID
	// Code is the human-readable trip id shown on dispatch boards.
	Code      string
	DriverID  types.ID
	VehicleID types.ID
	ParcelIDs []types.ID
	// Destinations are copied from the originating parcel selection at
	// creation time, not a live join.
	Destinations  []Destination
	Status        Status
	StatusVersion int
	// SOS is an orthogonal emergency overlay; it never blocks transitions.
	SOS         bool
	Start       types.Point
	Route       *maps.RouteSummary
	CreatedAt   time.Time
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	DeclinedAt  *time.Time
}

type Destination struct {
	ParcelID    types.ID
	Position    types.Point
	Name        string
	Seq         int
	Delivered   bool
	DeliveredAt *time.Time
}

type Event struct {
	ID         int64
	TripID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the trip state flow as code.
// declined -> pending is the reassignment re-entry.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusDeclined},
	StatusAccepted:   {StatusInProgress},
	StatusInProgress: {StatusCompleted},
	StatusDeclined:   {StatusPending},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Live reports whether the trip is in a state where a driver is actively
// en route or about to be (used by SOS and location gating).
func (t *Trip) Live() bool {
	return t.Status == StatusAccepted || t.Status == StatusInProgress
}

// UndeliveredCount returns how many destinations are still open.
func (t *Trip) UndeliveredCount() int {
	n := 0
	for _, d := range t.Destinations {
		if !d.Delivered {
			n++
		}
	}
	return n
}

// ComputeProgress recomputes delivery progress on demand: delivered parcel
// count over total parcel count, as an integer percentage. The cached value
// on the tracking projection is refreshed from this, never the reverse.
func ComputeProgress(t *Trip) int {
	if len(t.ParcelIDs) == 0 {
		return 0
	}
	delivered := len(t.Destinations) - t.UndeliveredCount()
	return delivered * 100 / len(t.ParcelIDs)
}

func newTripCode(now time.Time) string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return "LH-" + now.Format("20060102") + "-" + hex.EncodeToString(b[:])
}
