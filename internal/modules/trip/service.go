// README: Trip lifecycle engine: assignment preconditions, transitions, and
// the synchronization of driver/vehicle/parcel status with trip status.
package trip

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"linehaul/internal/maps"
	"linehaul/internal/modules/fleet"
	"linehaul/internal/modules/parcel"
	"linehaul/internal/types"
)

var (
	ErrNotFound   = errors.New("trip not found")
	ErrBadRequest = errors.New("bad request")
	// Assignment validation errors: caller-correctable, no retry.
	ErrParcelAlreadyAssigned       = errors.New("parcel already assigned to a live trip")
	ErrDriverUnavailable           = errors.New("driver unavailable")
	ErrVehicleUnavailable          = errors.New("vehicle unavailable")
	ErrVehicleInsufficientCapacity = errors.New("vehicle capacity insufficient for parcel weight")
	// State errors: the caller's view is stale.
	ErrInvalidTransition  = errors.New("invalid trip transition")
	ErrIncompleteDelivery = errors.New("undelivered destinations remain")
	// ErrConflict is the loser's result under single-writer-wins: the
	// conditional update found another writer already advanced the trip.
	ErrConflict = errors.New("trip state conflict")
)

// Notifier is the dispatcher boundary; implementations record durable
// notification documents. All calls are bookkeeping on top of an already
// committed transition.
type Notifier interface {
	OfferCreated(ctx context.Context, tripID types.ID, tripCode string, driverID, vehicleID types.ID, parcelIDs []types.ID) error
	OfferAccepted(ctx context.Context, tripID, driverID types.ID) error
	OfferDeclined(ctx context.Context, tripID, driverID types.ID) error
	DeclineEscalated(ctx context.Context, tripID types.ID, tripCode string, declinedDriverID, vehicleID types.ID, parcelIDs []types.ID) error
}

// Tracker maintains the live-tracking projection for active trips.
type Tracker interface {
	TripAccepted(ctx context.Context, t *Trip) error
	TripClosed(ctx context.Context, id types.ID) error
	ProgressChanged(ctx context.Context, t *Trip) error
	SOSChanged(ctx context.Context, id types.ID, active bool, pos *types.Point) error
}

// RouteEstimator is the external routing provider boundary. Best-effort:
// implementations fall back to straight-line estimates rather than fail.
type RouteEstimator interface {
	EstimateRoute(ctx context.Context, start types.Point, stops []types.Point) (maps.RouteSummary, error)
}

// Deps are the collaborators around the engine. Notifier, Tracker, and
// Routes may be nil in tests; Log defaults to a no-op logger.
type Deps struct {
	Notifier Notifier
	Tracker  Tracker
	Routes   RouteEstimator
	Log      *zap.Logger
}

type Service struct {
	store    Store
	fleet    *fleet.Service
	parcels  parcel.Store
	notifier Notifier
	tracker  Tracker
	routes   RouteEstimator
	log      *zap.Logger
}

func NewService(store Store, fleetSvc *fleet.Service, parcelStore parcel.Store, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		fleet:    fleetSvc,
		parcels:  parcelStore,
		notifier: deps.Notifier,
		tracker:  deps.Tracker,
		routes:   deps.Routes,
		log:      log,
	}
}

type CreateCommand struct {
	ParcelIDs []types.ID
	DriverID  types.ID
	VehicleID types.ID
	Start     types.Point
}

// Create assembles a trip offer. The driver is claimed (available -> pending)
// and parcels are claimed (booked -> pending) under conditional updates, but
// driver and vehicle are not marked on-trip until acceptance. On any failure
// partway through, every claim taken so far is released.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if len(cmd.ParcelIDs) == 0 || cmd.DriverID == "" || cmd.VehicleID == "" || !cmd.Start.Valid() {
		return nil, ErrBadRequest
	}

	driver, err := s.fleet.GetDriver(ctx, cmd.DriverID)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			return nil, ErrDriverUnavailable
		}
		return nil, err
	}
	if !driver.Eligible() {
		return nil, ErrDriverUnavailable
	}

	vehicle, err := s.fleet.GetVehicle(ctx, cmd.VehicleID)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			return nil, ErrVehicleUnavailable
		}
		return nil, err
	}
	if vehicle.Status != fleet.VehicleActive {
		return nil, ErrVehicleUnavailable
	}

	selection, err := s.parcels.GetMany(ctx, cmd.ParcelIDs)
	if err != nil {
		return nil, err
	}
	if len(selection) != len(cmd.ParcelIDs) {
		return nil, ErrBadRequest
	}
	totalKg := 0.0
	for _, p := range selection {
		if p.Assigned() {
			return nil, ErrParcelAlreadyAssigned
		}
		totalKg += p.WeightKg
	}
	if totalKg > vehicle.CapacityKg {
		return nil, ErrVehicleInsufficientCapacity
	}

	// Claim the driver first: the single winner gate for concurrent
	// assignments of the same driver.
	claimed, err := s.fleet.ClaimDriver(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDriverUnavailable
	}

	now := time.Now()
	t := &Trip{
		ID:           types.NewID(),
		Code:         newTripCode(now),
		DriverID:     cmd.DriverID,
		VehicleID:    cmd.VehicleID,
		ParcelIDs:    append([]types.ID(nil), cmd.ParcelIDs...),
		Destinations: destinationsFrom(selection),
		Status:       StatusPending,
		Start:        cmd.Start,
		CreatedAt:    now,
	}
	if s.routes != nil {
		if sum, err := s.routes.EstimateRoute(ctx, cmd.Start, destinationPoints(t.Destinations)); err == nil {
			t.Route = &sum
		}
	}

	ok, err := s.store.Create(ctx, t)
	if err != nil {
		s.releaseDriverClaim(ctx, cmd.DriverID)
		return nil, err
	}
	if !ok {
		// Another live trip already holds this vehicle.
		s.releaseDriverClaim(ctx, cmd.DriverID)
		return nil, ErrVehicleUnavailable
	}

	var claimedParcels []types.ID
	for _, id := range cmd.ParcelIDs {
		ok, err := s.parcels.Claim(ctx, id, t.ID)
		if err == nil && ok {
			claimedParcels = append(claimedParcels, id)
			continue
		}
		// Lost a race on a parcel: unwind everything.
		for _, c := range claimedParcels {
			_ = s.parcels.ReleaseClaim(ctx, c, t.ID)
		}
		_ = s.store.Delete(ctx, t.ID)
		s.releaseDriverClaim(ctx, cmd.DriverID)
		if err != nil {
			return nil, err
		}
		return nil, ErrParcelAlreadyAssigned
	}

	s.appendEvent(ctx, t.ID, StatusNone, StatusPending, "manager", nil)
	if s.notifier != nil {
		_ = s.notifier.OfferCreated(ctx, t.ID, t.Code, t.DriverID, t.VehicleID, t.ParcelIDs)
	}
	return t, nil
}

type AcceptCommand struct {
	TripID   types.ID
	DriverID types.ID
}

// Accept moves a pending offer straight through accepted into in_progress;
// acceptance starts the trip. Re-acceptance by the same driver is a no-op
// returning the current state.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.Live() && t.DriverID == cmd.DriverID {
		return t, nil
	}
	if t.Status != StatusPending || t.DriverID != cmd.DriverID {
		return nil, ErrInvalidTransition
	}

	// Reserve the vehicle before committing the trip transition so a busy
	// vehicle never leaves a half-accepted trip behind.
	vehicleOK, err := s.fleet.SetVehicleStatus(ctx, t.VehicleID, fleet.VehicleActive, fleet.VehicleOnTrip)
	if err != nil {
		return nil, err
	}
	if !vehicleOK {
		return nil, ErrVehicleUnavailable
	}

	ok, err := s.store.UpdateStatus(ctx, t.ID, StatusPending, StatusAccepted, t.StatusVersion, "")
	if err != nil {
		_, _ = s.fleet.SetVehicleStatus(ctx, t.VehicleID, fleet.VehicleOnTrip, fleet.VehicleActive)
		return nil, err
	}
	if !ok {
		// Single-writer-wins: a concurrent accept or decline got there first.
		_, _ = s.fleet.SetVehicleStatus(ctx, t.VehicleID, fleet.VehicleOnTrip, fleet.VehicleActive)
		return nil, ErrConflict
	}
	s.appendEvent(ctx, t.ID, StatusPending, StatusAccepted, "driver", &cmd.DriverID)

	ok, err = s.store.UpdateStatus(ctx, t.ID, StatusAccepted, StatusInProgress, t.StatusVersion+1, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, t.ID, StatusAccepted, StatusInProgress, "driver", &cmd.DriverID)

	if _, err := s.fleet.SetDispatch(ctx, t.DriverID, fleet.DispatchPending, fleet.DispatchOnTrip); err != nil {
		return nil, err
	}
	if err := s.parcels.SetStatusForTrip(ctx, t.ID, parcel.StatusPending, parcel.StatusConfirmed); err != nil {
		return nil, err
	}

	t, err = s.store.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if s.tracker != nil {
		_ = s.tracker.TripAccepted(ctx, t)
	}
	if s.notifier != nil {
		_ = s.notifier.OfferAccepted(ctx, t.ID, cmd.DriverID)
	}
	return t, nil
}

type DeclineCommand struct {
	TripID   types.ID
	DriverID types.ID
}

// Decline rejects a pending offer: parcels move to the declined pool and the
// driver returns to the available pool. Driver and vehicle were never marked
// on-trip, so nothing else needs repair.
func (s *Service) Decline(ctx context.Context, cmd DeclineCommand) (*Trip, error) {
	return s.decline(ctx, cmd.TripID, cmd.DriverID, "driver")
}

func (s *Service) decline(ctx context.Context, tripID, driverID types.ID, actorType string) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	if actorType == "driver" && t.DriverID != driverID {
		return nil, ErrInvalidTransition
	}

	ok, err := s.store.UpdateStatus(ctx, t.ID, StatusPending, StatusDeclined, t.StatusVersion, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	var actorID *types.ID
	if actorType == "driver" {
		actorID = &driverID
	}
	s.appendEvent(ctx, t.ID, StatusPending, StatusDeclined, actorType, actorID)

	if err := s.parcels.SetStatusForTrip(ctx, t.ID, parcel.StatusPending, parcel.StatusDeclined); err != nil {
		return nil, err
	}
	if _, err := s.fleet.SetDispatch(ctx, t.DriverID, fleet.DispatchPending, fleet.DispatchAvailable); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		_ = s.notifier.OfferDeclined(ctx, t.ID, t.DriverID)
		_ = s.notifier.DeclineEscalated(ctx, t.ID, t.Code, t.DriverID, t.VehicleID, t.ParcelIDs)
	}
	return s.store.Get(ctx, t.ID)
}

type UpdateResourcesCommand struct {
	TripID    types.ID
	DriverID  types.ID
	VehicleID types.ID
}

// UpdateResources is the manager edit of a pending offer. The new driver and
// vehicle pass the same validation as a fresh assignment; a driver swap
// issues a fresh offer, a vehicle-only swap leaves the offer standing.
func (s *Service) UpdateResources(ctx context.Context, cmd UpdateResourcesCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	newDriverID := t.DriverID
	if cmd.DriverID != "" {
		newDriverID = cmd.DriverID
	}
	newVehicleID := t.VehicleID
	if cmd.VehicleID != "" {
		newVehicleID = cmd.VehicleID
	}

	if newVehicleID != t.VehicleID {
		vehicle, err := s.fleet.GetVehicle(ctx, newVehicleID)
		if err != nil {
			if errors.Is(err, fleet.ErrNotFound) {
				return nil, ErrVehicleUnavailable
			}
			return nil, err
		}
		if vehicle.Status != fleet.VehicleActive {
			return nil, ErrVehicleUnavailable
		}
		busy, err := s.store.ActiveExistsForVehicle(ctx, newVehicleID, t.ID)
		if err != nil {
			return nil, err
		}
		if busy {
			return nil, ErrVehicleUnavailable
		}
		selection, err := s.parcels.GetMany(ctx, t.ParcelIDs)
		if err != nil {
			return nil, err
		}
		totalKg := 0.0
		for _, p := range selection {
			totalKg += p.WeightKg
		}
		if totalKg > vehicle.CapacityKg {
			return nil, ErrVehicleInsufficientCapacity
		}
	}

	driverChanged := newDriverID != t.DriverID
	if driverChanged {
		claimed, err := s.fleet.ClaimDriver(ctx, newDriverID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrDriverUnavailable
		}
	}

	ok, err := s.store.SetResources(ctx, t.ID, newDriverID, newVehicleID, t.StatusVersion)
	if err == nil && !ok {
		err = ErrConflict
	}
	if err != nil {
		if driverChanged {
			s.releaseDriverClaim(ctx, newDriverID)
		}
		return nil, err
	}

	if driverChanged {
		// The previous offer is void; free the old driver.
		if _, err := s.fleet.SetDispatch(ctx, t.DriverID, fleet.DispatchPending, fleet.DispatchAvailable); err != nil {
			return nil, err
		}
		if s.notifier != nil {
			_ = s.notifier.OfferDeclined(ctx, t.ID, t.DriverID)
			_ = s.notifier.OfferCreated(ctx, t.ID, t.Code, newDriverID, newVehicleID, t.ParcelIDs)
		}
	}
	return s.store.Get(ctx, t.ID)
}

// Reoffer re-enters a declined trip at pending with a replacement driver,
// keeping the vehicle and parcel set unchanged. The reassignment resolver
// calls this after re-checking eligibility.
func (s *Service) Reoffer(ctx context.Context, tripID, newDriverID types.ID) (*Trip, error) {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusDeclined {
		return nil, ErrInvalidTransition
	}

	claimed, err := s.fleet.ClaimDriver(ctx, newDriverID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDriverUnavailable
	}

	ok, err := s.store.UpdateStatus(ctx, t.ID, StatusDeclined, StatusPending, t.StatusVersion, newDriverID)
	if err == nil && !ok {
		err = ErrConflict
	}
	if err != nil {
		s.releaseDriverClaim(ctx, newDriverID)
		return nil, err
	}
	s.appendEvent(ctx, t.ID, StatusDeclined, StatusPending, "manager", nil)

	if err := s.parcels.SetStatusForTrip(ctx, t.ID, parcel.StatusDeclined, parcel.StatusPending); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		_ = s.notifier.OfferCreated(ctx, t.ID, t.Code, newDriverID, t.VehicleID, t.ParcelIDs)
	}
	return s.store.Get(ctx, t.ID)
}

type CompleteCommand struct {
	TripID types.ID
}

// Complete closes an in-progress trip once every destination is delivered,
// releasing the driver and vehicle back to their available pools.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusInProgress {
		return nil, ErrInvalidTransition
	}
	if t.UndeliveredCount() > 0 {
		return nil, ErrIncompleteDelivery
	}

	ok, err := s.store.UpdateStatus(ctx, t.ID, StatusInProgress, StatusCompleted, t.StatusVersion, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, t.ID, StatusInProgress, StatusCompleted, "driver", &t.DriverID)

	if err := s.parcels.SetStatusForTrip(ctx, t.ID, parcel.StatusConfirmed, parcel.StatusDelivered); err != nil {
		return nil, err
	}
	if err := s.parcels.SetStatusForTrip(ctx, t.ID, parcel.StatusInTransit, parcel.StatusDelivered); err != nil {
		return nil, err
	}
	if _, err := s.fleet.SetDispatch(ctx, t.DriverID, fleet.DispatchOnTrip, fleet.DispatchAvailable); err != nil {
		return nil, err
	}
	if _, err := s.fleet.SetVehicleStatus(ctx, t.VehicleID, fleet.VehicleOnTrip, fleet.VehicleActive); err != nil {
		return nil, err
	}
	if s.tracker != nil {
		_ = s.tracker.TripClosed(ctx, t.ID)
	}
	return s.store.Get(ctx, t.ID)
}

type MarkDeliveredCommand struct {
	TripID   types.ID
	ParcelID types.ID
}

// MarkDelivered records one destination as delivered and refreshes the cached
// progress on the tracking projection. Re-marking a delivered destination is
// a no-op returning the current state.
func (s *Service) MarkDelivered(ctx context.Context, cmd MarkDeliveredCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusInProgress {
		return nil, ErrInvalidTransition
	}

	known := false
	for _, d := range t.Destinations {
		if d.ParcelID == cmd.ParcelID {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrNotFound
	}

	changed, err := s.store.MarkDestinationDelivered(ctx, t.ID, cmd.ParcelID, time.Now())
	if err != nil {
		return nil, err
	}
	if changed {
		if ok, err := s.parcels.SetStatus(ctx, cmd.ParcelID, parcel.StatusInTransit, parcel.StatusDelivered); err != nil {
			return nil, err
		} else if !ok {
			if _, err := s.parcels.SetStatus(ctx, cmd.ParcelID, parcel.StatusConfirmed, parcel.StatusDelivered); err != nil {
				return nil, err
			}
		}
	}

	t, err = s.store.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if changed && s.tracker != nil {
		_ = s.tracker.ProgressChanged(ctx, t)
	}
	return t, nil
}

// MarkEnRoute moves an in-progress trip's confirmed parcels to in_transit.
// The tracker calls this on the first location report of a trip.
func (s *Service) MarkEnRoute(ctx context.Context, tripID types.ID) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if t.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	return s.parcels.SetStatusForTrip(ctx, t.ID, parcel.StatusConfirmed, parcel.StatusInTransit)
}

type SOSCommand struct {
	TripID   types.ID
	Active   bool
	Position *types.Point
}

// ToggleSOS flips the emergency flag. Raising it requires a live trip;
// clearing is always permitted.
func (s *Service) ToggleSOS(ctx context.Context, cmd SOSCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if cmd.Active && !t.Live() {
		return nil, ErrInvalidTransition
	}
	if err := s.store.SetSOS(ctx, t.ID, cmd.Active); err != nil {
		return nil, err
	}
	if s.tracker != nil {
		_ = s.tracker.SOSChanged(ctx, t.ID, cmd.Active, cmd.Position)
	}
	return s.store.Get(ctx, t.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) releaseDriverClaim(ctx context.Context, driverID types.ID) {
	if _, err := s.fleet.SetDispatch(ctx, driverID, fleet.DispatchPending, fleet.DispatchAvailable); err != nil {
		s.log.Warn("release driver claim failed", zap.String("driver_id", string(driverID)), zap.Error(err))
	}
}

func (s *Service) appendEvent(ctx context.Context, tripID types.ID, from, to Status, actorType string, actorID *types.ID) {
	_ = s.store.AppendEvent(ctx, &Event{
		TripID:     tripID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
}

// destinationsFrom copies delivery destinations out of the parcel selection,
// ordered by their stop sequence.
func destinationsFrom(selection []*parcel.Parcel) []Destination {
	var out []Destination
	for _, p := range selection {
		if p.Destination == nil {
			continue
		}
		out = append(out, Destination{
			ParcelID: p.ID,
			Position: p.Destination.Position,
			Name:     p.Destination.Name,
			Seq:      p.Destination.Seq,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func destinationPoints(dests []Destination) []types.Point {
	pts := make([]types.Point, len(dests))
	for i, d := range dests {
		pts[i] = d.Position
	}
	return pts
}
