// README: Driver and Vehicle records and their status registries.
package fleet

import (
	"time"

	"linehaul/internal/types"
)

// Status is a driver's employment standing.
type Status string

const (
	StatusActive   Status = "active"
	StatusResigned Status = "resigned"
)

// DispatchStatus mirrors where a driver sits in the assignment flow. It is a
// projection maintained by the trip lifecycle engine alongside every trip
// transition, never set independently once an offer exists.
type DispatchStatus string

const (
	DispatchAvailable DispatchStatus = "available"
	DispatchPending   DispatchStatus = "pending"
	DispatchAccepted  DispatchStatus = "accepted"
	DispatchOnTrip    DispatchStatus = "on-trip"
)

type VehicleStatus string

const (
	VehicleActive    VehicleStatus = "active"
	VehicleOnTrip    VehicleStatus = "on-trip"
	VehicleInService VehicleStatus = "in-service"
	VehicleSold      VehicleStatus = "sold"
)

type Driver struct {
	ID        types.ID
	Name      string
	Phone     string
	LicenseNo string
	// PhotoRef is an opaque media-storage id; content is never inspected here.
	PhotoRef  string
	Status    Status
	Available bool
	Dispatch  DispatchStatus
	CreatedAt time.Time
}

type Vehicle struct {
	ID         types.ID
	Plate      string
	Model      string
	CapacityKg float64
	Status     VehicleStatus
	CreatedAt  time.Time
}

// AllowedDispatchTransitions is the authoritative dispatch-status flow.
var AllowedDispatchTransitions = map[DispatchStatus][]DispatchStatus{
	DispatchAvailable: {DispatchPending},
	DispatchPending:   {DispatchAccepted, DispatchOnTrip, DispatchAvailable},
	DispatchAccepted:  {DispatchOnTrip, DispatchAvailable},
	DispatchOnTrip:    {DispatchAvailable},
}

// AllowedVehicleTransitions is the authoritative vehicle-status flow.
// Sold is terminal; sold vehicles never re-enter assignment.
var AllowedVehicleTransitions = map[VehicleStatus][]VehicleStatus{
	VehicleActive:    {VehicleOnTrip, VehicleInService, VehicleSold},
	VehicleOnTrip:    {VehicleActive},
	VehicleInService: {VehicleActive, VehicleSold},
}

func CanTransitionDispatch(from, to DispatchStatus) bool {
	for _, s := range AllowedDispatchTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanTransitionVehicle(from, to VehicleStatus) bool {
	for _, s := range AllowedVehicleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Eligible reports whether the driver can receive a fresh trip offer.
func (d *Driver) Eligible() bool {
	return d.Status == StatusActive && d.Available && d.Dispatch == DispatchAvailable
}
