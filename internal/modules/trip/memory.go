// README: In-memory trip store preserving the SQL store's CAS and vehicle guards.
package trip

import (
	"context"
	"sync"
	"time"

	"linehaul/internal/types"
)

type MemStore struct {
	mu     sync.Mutex
	trips  map[types.ID]*Trip
	events []Event
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{trips: make(map[types.ID]*Trip)}
}

func (s *MemStore) Create(ctx context.Context, t *Trip) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.trips {
		if other.VehicleID == t.VehicleID && liveStatus(other.Status) {
			return false, nil
		}
	}
	s.trips[t.ID] = cloneTrip(t)
	return true, nil
}

func (s *MemStore) Delete(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trips, id)
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrip(t), nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || t.Status != from || t.StatusVersion != version {
		return false, nil
	}
	t.Status = to
	t.StatusVersion++
	if driverID != "" {
		t.DriverID = driverID
	}
	now := time.Now()
	switch to {
	case StatusAccepted:
		t.AcceptedAt = &now
	case StatusInProgress:
		t.StartedAt = &now
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusDeclined:
		t.DeclinedAt = &now
	}
	return true, nil
}

func (s *MemStore) SetResources(ctx context.Context, id types.ID, driverID, vehicleID types.ID, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || t.StatusVersion != version {
		return false, nil
	}
	t.DriverID = driverID
	t.VehicleID = vehicleID
	t.StatusVersion++
	return true, nil
}

func (s *MemStore) MarkDestinationDelivered(ctx context.Context, tripID, parcelID types.ID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok {
		return false, nil
	}
	for i := range t.Destinations {
		d := &t.Destinations[i]
		if d.ParcelID == parcelID && !d.Delivered {
			d.Delivered = true
			ts := at
			d.DeliveredAt = &ts
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) SetSOS(ctx context.Context, id types.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return ErrNotFound
	}
	t.SOS = active
	return nil
}

func (s *MemStore) ActiveExistsForVehicle(ctx context.Context, vehicleID, exclude types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.ID != exclude && t.VehicleID == vehicleID && liveStatus(t.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Trip
	for _, t := range s.trips {
		if t.Status == StatusPending && t.CreatedAt.Before(cutoff) {
			out = append(out, cloneTrip(t))
		}
	}
	return out, nil
}

func (s *MemStore) AppendEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	s.events = append(s.events, cp)
	return nil
}

// Events returns a snapshot of the appended state events (test helper).
func (s *MemStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func liveStatus(st Status) bool {
	return st == StatusPending || st == StatusAccepted || st == StatusInProgress
}

func cloneTrip(t *Trip) *Trip {
	cp := *t
	cp.ParcelIDs = append([]types.ID(nil), t.ParcelIDs...)
	cp.Destinations = append([]Destination(nil), t.Destinations...)
	for i := range cp.Destinations {
		if t.Destinations[i].DeliveredAt != nil {
			ts := *t.Destinations[i].DeliveredAt
			cp.Destinations[i].DeliveredAt = &ts
		}
	}
	if t.Route != nil {
		r := *t.Route
		cp.Route = &r
	}
	return &cp
}
