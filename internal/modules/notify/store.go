// README: Notification store backed by PostgreSQL.
package notify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linehaul/internal/types"
)

var ErrNotFound = errors.New("notification not found")

type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id types.ID) (*Notification, error)
	MarkRead(ctx context.Context, id types.ID) error
	// SetStatus is a conditional transition; reports false on a stale view.
	SetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
	// LatestOffer returns the most recent trip_offer for a trip and driver.
	LatestOffer(ctx context.Context, tripID, driverID types.ID) (*Notification, error)
	// ListForDriver surfaces a driver's notifications newest-first.
	ListForDriver(ctx context.Context, driverID types.ID) ([]*Notification, error)
	// ListForManagers surfaces escalations actionable-first: pending
	// driver_declined items ahead of everything else, then newest-first.
	ListForManagers(ctx context.Context) ([]*Notification, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const notificationColumns = `id, type, trip_id, driver_id, declined_driver_id, vehicle_id, parcel_ids, status, read, message, created_at`

func (s *PGStore) Create(ctx context.Context, n *Notification) error {
	parcels := make([]string, len(n.ParcelIDs))
	for i, id := range n.ParcelIDs {
		parcels[i] = string(id)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(n.ID), string(n.Type), string(n.TripID), string(n.DriverID),
		string(n.DeclinedDriverID), string(n.VehicleID), parcels,
		string(n.Status), n.Read, n.Message, n.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Notification, error) {
	row := s.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, string(id))
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *PGStore) MarkRead(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) LatestOffer(ctx context.Context, tripID, driverID types.ID) (*Notification, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE type = 'trip_offer' AND trip_id = $1 AND driver_id = $2
		ORDER BY created_at DESC LIMIT 1`,
		string(tripID), string(driverID),
	)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *PGStore) ListForDriver(ctx context.Context, driverID types.ID) ([]*Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE driver_id = $1 AND type = 'trip_offer'
		ORDER BY created_at DESC`, string(driverID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (s *PGStore) ListForManagers(ctx context.Context) ([]*Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE type IN ('driver_declined', 'info')
		ORDER BY (type = 'driver_declined' AND status = 'pending') DESC, created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	var parcels []string
	err := row.Scan(&n.ID, &n.Type, &n.TripID, &n.DriverID, &n.DeclinedDriverID,
		&n.VehicleID, &parcels, &n.Status, &n.Read, &n.Message, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.ParcelIDs = make([]types.ID, len(parcels))
	for i, p := range parcels {
		n.ParcelIDs[i] = types.ID(p)
	}
	return &n, nil
}

func collect(rows pgx.Rows) ([]*Notification, error) {
	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
