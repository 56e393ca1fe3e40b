// README: Fleet store backed by PostgreSQL; dispatch claims use conditional updates.
package fleet

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linehaul/internal/types"
)

var ErrNotFound = errors.New("fleet record not found")

// Store is the persistence boundary for drivers and vehicles. All status
// mutations are compare-and-swap: they report false instead of overwriting
// when the expected prior state no longer holds.
type Store interface {
	CreateDriver(ctx context.Context, d *Driver) error
	GetDriver(ctx context.Context, id types.ID) (*Driver, error)
	ListEligibleDrivers(ctx context.Context, exclude types.ID) ([]*Driver, error)
	// ClaimDriver moves an eligible driver from available to pending.
	// Exactly one concurrent claimant wins.
	ClaimDriver(ctx context.Context, id types.ID) (bool, error)
	SetDriverDispatch(ctx context.Context, id types.ID, from, to DispatchStatus) (bool, error)
	SetDriverAvailable(ctx context.Context, id types.ID, available bool) error

	CreateVehicle(ctx context.Context, v *Vehicle) error
	GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error)
	SetVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus) (bool, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateDriver(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, name, phone, license_no, photo_ref, status, available, dispatch, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(d.ID), d.Name, d.Phone, d.LicenseNo, d.PhotoRef,
		string(d.Status), d.Available, string(d.Dispatch), d.CreatedAt,
	)
	return err
}

func (s *PGStore) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, phone, license_no, photo_ref, status, available, dispatch, created_at
		FROM drivers WHERE id = $1`, string(id),
	)
	var d Driver
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.LicenseNo, &d.PhotoRef, &d.Status, &d.Available, &d.Dispatch, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PGStore) ListEligibleDrivers(ctx context.Context, exclude types.ID) ([]*Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone, license_no, photo_ref, status, available, dispatch, created_at
		FROM drivers
		WHERE status = 'active' AND available AND dispatch = 'available' AND id <> $1
		ORDER BY created_at`, string(exclude),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.LicenseNo, &d.PhotoRef, &d.Status, &d.Available, &d.Dispatch, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PGStore) ClaimDriver(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET dispatch = 'pending'
		WHERE id = $1 AND status = 'active' AND available AND dispatch = 'available'`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetDriverDispatch(ctx context.Context, id types.ID, from, to DispatchStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET dispatch = $1 WHERE id = $2 AND dispatch = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetDriverAvailable(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET available = $1 WHERE id = $2`, available, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CreateVehicle(ctx context.Context, v *Vehicle) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vehicles (id, plate, model, capacity_kg, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(v.ID), v.Plate, v.Model, v.CapacityKg, string(v.Status), v.CreatedAt,
	)
	return err
}

func (s *PGStore) GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, plate, model, capacity_kg, status, created_at
		FROM vehicles WHERE id = $1`, string(id),
	)
	var v Vehicle
	err := row.Scan(&v.ID, &v.Plate, &v.Model, &v.CapacityKg, &v.Status, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) SetVehicleStatus(ctx context.Context, id types.ID, from, to VehicleStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE vehicles SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
