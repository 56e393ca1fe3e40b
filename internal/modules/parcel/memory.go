// README: In-memory parcel store mirroring the SQL store's CAS behavior.
package parcel

import (
	"context"
	"sort"
	"sync"

	"linehaul/internal/types"
)

type MemStore struct {
	mu      sync.Mutex
	parcels map[types.ID]*Parcel
}

func NewMemStore() *MemStore {
	return &MemStore{parcels: make(map[types.ID]*Parcel)}
}

func (s *MemStore) Create(ctx context.Context, p *Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(p)
	s.parcels[p.ID] = cp
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

func (s *MemStore) GetMany(ctx context.Context, ids []types.ID) ([]*Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Parcel
	for _, id := range ids {
		if p, ok := s.parcels[id]; ok {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

func (s *MemStore) ListByStatus(ctx context.Context, status Status) ([]*Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Parcel
	for _, p := range s.parcels {
		if p.Status == status {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) Claim(ctx context.Context, id, tripID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[id]
	if !ok || p.Status != StatusBooked || p.TripID != nil {
		return false, nil
	}
	p.Status = StatusPending
	t := tripID
	p.TripID = &t
	return true, nil
}

func (s *MemStore) ReleaseClaim(ctx context.Context, id, tripID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[id]
	if !ok || p.Status != StatusPending || p.TripID == nil || *p.TripID != tripID {
		return nil
	}
	p.Status = StatusBooked
	p.TripID = nil
	return nil
}

func (s *MemStore) SetStatusForTrip(ctx context.Context, tripID types.ID, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parcels {
		if p.TripID != nil && *p.TripID == tripID && p.Status == from {
			p.Status = to
		}
	}
	return nil
}

func (s *MemStore) SetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func clone(p *Parcel) *Parcel {
	cp := *p
	if p.Destination != nil {
		d := *p.Destination
		cp.Destination = &d
	}
	if p.TripID != nil {
		t := *p.TripID
		cp.TripID = &t
	}
	return &cp
}
