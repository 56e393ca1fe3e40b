// README: Notification record; the durable representation of offers and escalations.
package notify

import (
	"time"

	"linehaul/internal/types"
)

type Type string

const (
	TypeTripOffer      Type = "trip_offer"
	TypeDriverDeclined Type = "driver_declined"
	TypeInfo           Type = "info"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusResolved Status = "resolved"
)

// Notification references trips, drivers, vehicles, and parcels by id only.
// Referenced entities may be deleted or archived later; past notifications
// stay behind as an audit log and must tolerate dangling ids on read.
type Notification struct {
	ID               types.ID
	Type             Type
	TripID           types.ID
	DriverID         types.ID
	DeclinedDriverID types.ID
	VehicleID        types.ID
	ParcelIDs        []types.ID
	Status           Status
	Read             bool
	Message          string
	CreatedAt        time.Time
}
