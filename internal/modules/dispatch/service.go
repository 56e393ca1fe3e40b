// README: Reassignment resolver: replaces a declined driver on an offer.
package dispatch

import (
	"context"
	"errors"

	"linehaul/internal/modules/fleet"
	"linehaul/internal/modules/notify"
	"linehaul/internal/modules/trip"
	"linehaul/internal/types"
)

var (
	ErrNotFound = errors.New("escalation not found")
	// ErrDriverNotEligible covers both a bad pick and the race where the
	// driver became busy between listing and selection.
	ErrDriverNotEligible = errors.New("driver not eligible for reassignment")
	ErrAlreadyResolved   = errors.New("escalation already resolved")
)

type Service struct {
	fleet  *fleet.Service
	trips  *trip.Service
	notify *notify.Service
}

func NewService(fleetSvc *fleet.Service, tripSvc *trip.Service, notifySvc *notify.Service) *Service {
	return &Service{fleet: fleetSvc, trips: tripSvc, notify: notifySvc}
}

// ListEligibleDrivers returns replacement candidates: active, punched in,
// dispatch-available, excluding the driver who declined.
func (s *Service) ListEligibleDrivers(ctx context.Context, exclude types.ID) ([]*fleet.Driver, error) {
	return s.fleet.ListEligible(ctx, exclude)
}

// Reassign acts on a pending driver_declined escalation: eligibility is
// re-checked at reassignment time, the trip re-enters pending with the new
// driver and the unchanged vehicle, and the escalation resolves.
func (s *Service) Reassign(ctx context.Context, notificationID, newDriverID types.ID) (*trip.Trip, error) {
	n, err := s.notify.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if n.Type != notify.TypeDriverDeclined {
		return nil, ErrNotFound
	}
	if n.Status != notify.StatusPending {
		return nil, ErrAlreadyResolved
	}
	if newDriverID == n.DeclinedDriverID {
		return nil, ErrDriverNotEligible
	}

	driver, err := s.fleet.GetDriver(ctx, newDriverID)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			return nil, ErrDriverNotEligible
		}
		return nil, err
	}
	if !driver.Eligible() {
		return nil, ErrDriverNotEligible
	}

	t, err := s.trips.Reoffer(ctx, n.TripID, newDriverID)
	if err != nil {
		if errors.Is(err, trip.ErrDriverUnavailable) {
			return nil, ErrDriverNotEligible
		}
		return nil, err
	}

	// Settling the escalation is bookkeeping; the reassignment stands even
	// if a concurrent dismiss resolved it first.
	_, _ = s.notify.Resolve(ctx, n.ID)
	return t, nil
}

// Dismiss resolves an escalation without reassigning (the manager chose to
// handle the parcels another way).
func (s *Service) Dismiss(ctx context.Context, notificationID types.ID) error {
	n, err := s.notify.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if n.Type != notify.TypeDriverDeclined {
		return ErrNotFound
	}
	ok, err := s.notify.Resolve(ctx, n.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyResolved
	}
	return nil
}
