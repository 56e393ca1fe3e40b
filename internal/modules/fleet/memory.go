// README: In-memory fleet store with the same CAS semantics as the SQL store.
package fleet

import (
	"context"
	"sort"
	"sync"

	"linehaul/internal/types"
)

type MemStore struct {
	mu       sync.Mutex
	drivers  map[types.ID]*Driver
	vehicles map[types.ID]*Vehicle
}

func NewMemStore() *MemStore {
	return &MemStore{
		drivers:  make(map[types.ID]*Driver),
		vehicles: make(map[types.ID]*Vehicle),
	}
}

func (s *MemStore) CreateDriver(ctx context.Context, d *Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.drivers[d.ID] = &cp
	return nil
}

func (s *MemStore) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) ListEligibleDrivers(ctx context.Context, exclude types.ID) ([]*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Driver
	for _, d := range s.drivers {
		if d.ID == exclude || !d.Eligible() {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) ClaimDriver(ctx context.Context, id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok || !d.Eligible() {
		return false, nil
	}
	d.Dispatch = DispatchPending
	return true, nil
}

func (s *MemStore) SetDriverDispatch(ctx context.Context, id types.ID, from, to DispatchStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok || d.Dispatch != from {
		return false, nil
	}
	d.Dispatch = to
	return true, nil
}

func (s *MemStore) SetDriverAvailable(ctx context.Context, id types.ID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Available = available
	return nil
}

func (s *MemStore) CreateVehicle(ctx context.Context, v *Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vehicles[v.ID] = &cp
	return nil
}

func (s *MemStore) GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemStore) SetVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	return true, nil
}
