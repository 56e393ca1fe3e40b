// README: In-memory notification store with the SQL store's ordering rules.
package notify

import (
	"context"
	"sort"
	"sync"

	"linehaul/internal/types"
)

type MemStore struct {
	mu    sync.Mutex
	items map[types.ID]*Notification
}

func NewMemStore() *MemStore {
	return &MemStore{items: make(map[types.ID]*Notification)}
}

func (s *MemStore) Create(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = cloneNotification(n)
	return nil
}

func (s *MemStore) Get(ctx context.Context, id types.ID) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func (s *MemStore) MarkRead(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *MemStore) SetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.Status != from {
		return false, nil
	}
	n.Status = to
	return true, nil
}

func (s *MemStore) LatestOffer(ctx context.Context, tripID, driverID types.ID) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Notification
	for _, n := range s.items {
		if n.Type != TypeTripOffer || n.TripID != tripID || n.DriverID != driverID {
			continue
		}
		if latest == nil || n.CreatedAt.After(latest.CreatedAt) {
			latest = n
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneNotification(latest), nil
}

func (s *MemStore) ListForDriver(ctx context.Context, driverID types.ID) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, n := range s.items {
		if n.Type == TypeTripOffer && n.DriverID == driverID {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) ListForManagers(ctx context.Context) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, n := range s.items {
		if n.Type == TypeDriverDeclined || n.Type == TypeInfo {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai := actionable(out[i])
		aj := actionable(out[j])
		if ai != aj {
			return ai
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func actionable(n *Notification) bool {
	return n.Type == TypeDriverDeclined && n.Status == StatusPending
}

func cloneNotification(n *Notification) *Notification {
	cp := *n
	cp.ParcelIDs = append([]types.ID(nil), n.ParcelIDs...)
	return &cp
}
