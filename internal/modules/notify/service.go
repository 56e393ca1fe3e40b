// README: Notification dispatcher: offers, decline escalations, read marks.
package notify

import (
	"context"
	"fmt"
	"time"

	"linehaul/internal/types"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// OfferCreated records a trip offer addressed to the driver.
// One notification per driver per offer event.
func (s *Service) OfferCreated(ctx context.Context, tripID types.ID, tripCode string, driverID, vehicleID types.ID, parcelIDs []types.ID) error {
	n := &Notification{
		ID:        types.NewID(),
		Type:      TypeTripOffer,
		TripID:    tripID,
		DriverID:  driverID,
		VehicleID: vehicleID,
		ParcelIDs: append([]types.ID(nil), parcelIDs...),
		Status:    StatusPending,
		Message:   fmt.Sprintf("Trip %s offered: %d parcels", tripCode, len(parcelIDs)),
		CreatedAt: time.Now(),
	}
	return s.store.Create(ctx, n)
}

// OfferAccepted marks the driver's pending offer as accepted.
func (s *Service) OfferAccepted(ctx context.Context, tripID, driverID types.ID) error {
	return s.settleOffer(ctx, tripID, driverID, StatusAccepted)
}

// OfferDeclined marks the driver's pending offer as declined.
func (s *Service) OfferDeclined(ctx context.Context, tripID, driverID types.ID) error {
	return s.settleOffer(ctx, tripID, driverID, StatusDeclined)
}

func (s *Service) settleOffer(ctx context.Context, tripID, driverID types.ID, to Status) error {
	offer, err := s.store.LatestOffer(ctx, tripID, driverID)
	if err != nil {
		// The offer record may have been purged; settling it is bookkeeping,
		// never a reason to fail the trip transition.
		return nil
	}
	_, err = s.store.SetStatus(ctx, offer.ID, StatusPending, to)
	return err
}

// DeclineEscalated records a manager-facing escalation after a driver decline.
// It stays pending until a manager reassigns or dismisses it.
func (s *Service) DeclineEscalated(ctx context.Context, tripID types.ID, tripCode string, declinedDriverID, vehicleID types.ID, parcelIDs []types.ID) error {
	n := &Notification{
		ID:               types.NewID(),
		Type:             TypeDriverDeclined,
		TripID:           tripID,
		DeclinedDriverID: declinedDriverID,
		VehicleID:        vehicleID,
		ParcelIDs:        append([]types.ID(nil), parcelIDs...),
		Status:           StatusPending,
		Message:          fmt.Sprintf("Trip %s declined by driver; reassignment needed", tripCode),
		CreatedAt:        time.Now(),
	}
	return s.store.Create(ctx, n)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Notification, error) {
	return s.store.Get(ctx, id)
}

// MarkRead is idempotent and does not touch status.
func (s *Service) MarkRead(ctx context.Context, id types.ID) error {
	return s.store.MarkRead(ctx, id)
}

// Resolve settles a pending escalation after a manager acted on it.
func (s *Service) Resolve(ctx context.Context, id types.ID) (bool, error) {
	return s.store.SetStatus(ctx, id, StatusPending, StatusResolved)
}

func (s *Service) ListForDriver(ctx context.Context, driverID types.ID) ([]*Notification, error) {
	return s.store.ListForDriver(ctx, driverID)
}

func (s *Service) ListForManagers(ctx context.Context) ([]*Notification, error) {
	return s.store.ListForManagers(ctx)
}
