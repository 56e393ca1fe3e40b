// README: Parcel service: booking and pool queries.
package parcel

import (
	"context"
	"errors"
	"time"

	"linehaul/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type BookCommand struct {
	Reference   string
	WeightKg    float64
	Destination *Destination
}

func (s *Service) Book(ctx context.Context, cmd BookCommand) (*Parcel, error) {
	if cmd.WeightKg <= 0 {
		return nil, ErrBadRequest
	}
	if cmd.Destination != nil && !cmd.Destination.Position.Valid() {
		return nil, ErrBadRequest
	}
	p := &Parcel{
		ID:          types.NewID(),
		Reference:   cmd.Reference,
		WeightKg:    cmd.WeightKg,
		Status:      StatusBooked,
		Destination: cmd.Destination,
		CreatedAt:   time.Now(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Parcel, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetMany(ctx context.Context, ids []types.ID) ([]*Parcel, error) {
	return s.store.GetMany(ctx, ids)
}

// ListBooked is the unassigned pool managers bundle into trips.
func (s *Service) ListBooked(ctx context.Context) ([]*Parcel, error) {
	return s.store.ListByStatus(ctx, StatusBooked)
}

// ListDeclined is the reassignable pool left behind by driver declines.
func (s *Service) ListDeclined(ctx context.Context) ([]*Parcel, error) {
	return s.store.ListByStatus(ctx, StatusDeclined)
}

// Store exposes the underlying store to the trip lifecycle engine, which
// drives parcel transitions alongside trip transitions.
func (s *Service) Store() Store {
	return s.store
}
