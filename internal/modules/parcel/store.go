// README: Parcel store backed by PostgreSQL; claims are conditional updates.
package parcel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linehaul/internal/types"
)

var ErrNotFound = errors.New("parcel not found")

type Store interface {
	Create(ctx context.Context, p *Parcel) error
	Get(ctx context.Context, id types.ID) (*Parcel, error)
	GetMany(ctx context.Context, ids []types.ID) ([]*Parcel, error)
	ListByStatus(ctx context.Context, status Status) ([]*Parcel, error)
	// Claim moves a single unassigned booked parcel onto a trip offer.
	// Reports false when the parcel is already tied to a live trip.
	Claim(ctx context.Context, id, tripID types.ID) (bool, error)
	// ReleaseClaim is the compensation path: a pending parcel claimed by the
	// given trip returns to the booked pool.
	ReleaseClaim(ctx context.Context, id, tripID types.ID) error
	// SetStatusForTrip batch-moves every parcel of a trip between states.
	SetStatusForTrip(ctx context.Context, tripID types.ID, from, to Status) error
	// SetStatus is a single-parcel conditional transition.
	SetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, p *Parcel) error {
	var lat, lng *float64
	var name *string
	var seq *int
	if p.Destination != nil {
		lat, lng = &p.Destination.Position.Lat, &p.Destination.Position.Lng
		name, seq = &p.Destination.Name, &p.Destination.Seq
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO parcels (id, reference, weight_kg, status, dest_lat, dest_lng, dest_name, dest_seq, trip_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(p.ID), p.Reference, p.WeightKg, string(p.Status),
		lat, lng, name, seq, idPtr(p.TripID), p.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Parcel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, reference, weight_kg, status, dest_lat, dest_lng, dest_name, dest_seq, trip_id, created_at
		FROM parcels WHERE id = $1`, string(id),
	)
	p, err := scanParcel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PGStore) GetMany(ctx context.Context, ids []types.ID) ([]*Parcel, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, reference, weight_kg, status, dest_lat, dest_lng, dest_name, dest_seq, trip_id, created_at
		FROM parcels WHERE id = ANY($1)`, raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectParcels(rows)
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status) ([]*Parcel, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, reference, weight_kg, status, dest_lat, dest_lng, dest_name, dest_seq, trip_id, created_at
		FROM parcels WHERE status = $1 ORDER BY created_at`, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectParcels(rows)
}

func (s *PGStore) Claim(ctx context.Context, id, tripID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE parcels SET status = 'pending', trip_id = $1
		WHERE id = $2 AND status = 'booked' AND trip_id IS NULL`,
		string(tripID), string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ReleaseClaim(ctx context.Context, id, tripID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE parcels SET status = 'booked', trip_id = NULL
		WHERE id = $1 AND status = 'pending' AND trip_id = $2`,
		string(id), string(tripID),
	)
	return err
}

func (s *PGStore) SetStatusForTrip(ctx context.Context, tripID types.ID, from, to Status) error {
	_, err := s.db.Exec(ctx, `
		UPDATE parcels SET status = $1 WHERE trip_id = $2 AND status = $3`,
		string(to), string(tripID), string(from),
	)
	return err
}

func (s *PGStore) SetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE parcels SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (*Parcel, error) {
	var p Parcel
	var lat, lng *float64
	var name *string
	var seq *int
	var tripID *string
	err := row.Scan(&p.ID, &p.Reference, &p.WeightKg, &p.Status, &lat, &lng, &name, &seq, &tripID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d := Destination{Position: types.Point{Lat: *lat, Lng: *lng}}
		if name != nil {
			d.Name = *name
		}
		if seq != nil {
			d.Seq = *seq
		}
		p.Destination = &d
	}
	if tripID != nil {
		t := types.ID(*tripID)
		p.TripID = &t
	}
	return &p, nil
}

func collectParcels(rows pgx.Rows) ([]*Parcel, error) {
	var out []*Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
