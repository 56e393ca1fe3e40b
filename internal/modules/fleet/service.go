// README: Fleet service: registration, punch-in, and dispatch claims.
package fleet

import (
	"context"
	"errors"
	"time"

	"linehaul/internal/types"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("fleet state conflict")
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type RegisterDriverCommand struct {
	Name      string
	Phone     string
	LicenseNo string
	PhotoRef  string
}

type RegisterVehicleCommand struct {
	Plate      string
	Model      string
	CapacityKg float64
}

func (s *Service) RegisterDriver(ctx context.Context, cmd RegisterDriverCommand) (*Driver, error) {
	if cmd.Name == "" || cmd.LicenseNo == "" {
		return nil, ErrBadRequest
	}
	d := &Driver{
		ID:        types.NewID(),
		Name:      cmd.Name,
		Phone:     cmd.Phone,
		LicenseNo: cmd.LicenseNo,
		PhotoRef:  cmd.PhotoRef,
		Status:    StatusActive,
		Available: false,
		Dispatch:  DispatchAvailable,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateDriver(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) RegisterVehicle(ctx context.Context, cmd RegisterVehicleCommand) (*Vehicle, error) {
	if cmd.Plate == "" || cmd.CapacityKg <= 0 {
		return nil, ErrBadRequest
	}
	v := &Vehicle{
		ID:         types.NewID(),
		Plate:      cmd.Plate,
		Model:      cmd.Model,
		CapacityKg: cmd.CapacityKg,
		Status:     VehicleActive,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.GetDriver(ctx, id)
}

func (s *Service) GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

// SetAvailable is the driver punch-in/punch-out flag.
func (s *Service) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	return s.store.SetDriverAvailable(ctx, id, available)
}

// ListEligible returns drivers able to receive a fresh offer, excluding the
// given driver (used when replacing a decliner).
func (s *Service) ListEligible(ctx context.Context, exclude types.ID) ([]*Driver, error) {
	return s.store.ListEligibleDrivers(ctx, exclude)
}

// ClaimDriver reserves an eligible driver for a trip offer. It is the
// single-winner gate against two managers assigning the same driver at once.
func (s *Service) ClaimDriver(ctx context.Context, id types.ID) (bool, error) {
	return s.store.ClaimDriver(ctx, id)
}

// SetDispatch applies a registry-validated dispatch transition.
func (s *Service) SetDispatch(ctx context.Context, id types.ID, from, to DispatchStatus) (bool, error) {
	if !CanTransitionDispatch(from, to) {
		return false, ErrConflict
	}
	return s.store.SetDriverDispatch(ctx, id, from, to)
}

// SetVehicleStatus applies a registry-validated vehicle transition.
func (s *Service) SetVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus) (bool, error) {
	if !CanTransitionVehicle(from, to) {
		return false, ErrConflict
	}
	return s.store.SetVehicleStatus(ctx, id, from, to)
}
