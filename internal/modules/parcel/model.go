// README: Parcel record and status registry.
package parcel

import (
	"time"

	"linehaul/internal/types"
)

type Status string

const (
	// StatusBooked parcels sit in the unassigned pool.
	StatusBooked Status = "booked"
	// StatusPending parcels are tied to a trip offer awaiting driver acceptance.
	StatusPending Status = "pending"
	// StatusConfirmed parcels belong to an accepted trip.
	StatusConfirmed Status = "confirmed"
	// StatusInTransit parcels are on a moving trip.
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	// StatusDeclined parcels form the reassignable pool after a driver decline,
	// kept separate from the booked pool so managers see them as actionable.
	StatusDeclined Status = "declined"
)

type Parcel struct {
	ID        types.ID
	Reference string
	WeightKg  float64
	Status    Status
	// Destination is optional; parcels without one are depot pickups.
	Destination *Destination
	// TripID is a non-owning back-reference to the trip the parcel rides on.
	TripID    *types.ID
	CreatedAt time.Time
}

type Destination struct {
	Position types.Point
	Name     string
	Seq      int
}

// AllowedTransitions is the authoritative parcel status flow.
var AllowedTransitions = map[Status][]Status{
	StatusBooked:    {StatusPending},
	StatusPending:   {StatusConfirmed, StatusDeclined, StatusBooked},
	StatusDeclined:  {StatusPending},
	StatusConfirmed: {StatusInTransit, StatusDelivered},
	StatusInTransit: {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Assigned reports whether the parcel is tied to a live trip.
func (p *Parcel) Assigned() bool {
	switch p.Status {
	case StatusPending, StatusConfirmed, StatusInTransit:
		return true
	}
	return false
}
