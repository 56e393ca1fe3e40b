// README: Location & progress tracker over the Redis projection.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"linehaul/internal/modules/trip"
	"linehaul/internal/types"
)

var ErrInvalidCoordinates = errors.New("coordinates out of range")

type Service struct {
	store *Store
	trips *trip.Service
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// BindTrips wires the lifecycle engine in after construction; the engine and
// the tracker reference each other, so one side binds late.
func (s *Service) BindTrips(trips *trip.Service) {
	s.trips = trips
}

// ReportLocation records a driver position for an active trip. Reports for
// trips without a live projection are ignored, not errors: late or duplicate
// reports after completion are harmless.
func (s *Service) ReportLocation(ctx context.Context, tripID types.ID, pos types.Point, address string) error {
	if !pos.Valid() {
		return ErrInvalidCoordinates
	}
	live, err := s.store.Exists(ctx, tripID)
	if err != nil {
		return err
	}
	if !live {
		return nil
	}

	now := time.Now()
	first, err := s.store.SetLocation(ctx, tripID, pos, address, now)
	if err != nil {
		return err
	}
	if first && s.trips != nil {
		// The first fix marks the run as moving: confirmed parcels become
		// in-transit.
		if err := s.trips.MarkEnRoute(ctx, tripID); err != nil && !errors.Is(err, trip.ErrInvalidTransition) {
			return err
		}
	}

	_ = s.store.Publish(ctx, Update{
		TripID:   tripID,
		Kind:     "location",
		Position: pos,
		Address:  address,
		At:       now,
	})
	return nil
}

// GetOngoing is the polling read for manager dashboards, SOS screens, and
// customer tracking.
func (s *Service) GetOngoing(ctx context.Context, tripID types.ID) (*Ongoing, error) {
	return s.store.Get(ctx, tripID)
}

// Subscribe opens the additive push channel for a trip's updates.
func (s *Service) Subscribe(ctx context.Context, tripID types.ID) *redis.PubSub {
	return s.store.Subscribe(ctx, tripID)
}

// TripAccepted creates the projection when a trip goes live.
func (s *Service) TripAccepted(ctx context.Context, t *trip.Trip) error {
	return s.store.CreateOngoing(ctx, Ongoing{
		TripID:    t.ID,
		DriverID:  t.DriverID,
		Progress:  trip.ComputeProgress(t),
		SOS:       t.SOS,
		UpdatedAt: time.Now(),
	})
}

// TripClosed archives the projection on completion or decline.
func (s *Service) TripClosed(ctx context.Context, id types.ID) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	_ = s.store.Publish(ctx, Update{TripID: id, Kind: "closed", At: time.Now()})
	return nil
}

// ProgressChanged refreshes the cached progress from the trip aggregate.
func (s *Service) ProgressChanged(ctx context.Context, t *trip.Trip) error {
	progress := trip.ComputeProgress(t)
	if err := s.store.SetProgress(ctx, t.ID, progress); err != nil {
		return err
	}
	_ = s.store.Publish(ctx, Update{TripID: t.ID, Kind: "progress", Progress: progress, At: time.Now()})
	return nil
}

// SOSChanged mirrors the emergency flag onto the projection so pollers see
// it alongside the last known location.
func (s *Service) SOSChanged(ctx context.Context, id types.ID, active bool, pos *types.Point) error {
	if err := s.store.SetSOS(ctx, id, active); err != nil {
		return err
	}
	if pos != nil && pos.Valid() {
		first, err := s.store.SetLocation(ctx, id, *pos, "", time.Now())
		if err != nil {
			return err
		}
		// An SOS position counts as a fix like any other report.
		if first && s.trips != nil {
			if err := s.trips.MarkEnRoute(ctx, id); err != nil && !errors.Is(err, trip.ErrInvalidTransition) {
				return err
			}
		}
	}
	u := Update{TripID: id, Kind: "sos", SOS: active, At: time.Now()}
	if pos != nil {
		u.Position = *pos
	}
	_ = s.store.Publish(ctx, u)
	return nil
}
