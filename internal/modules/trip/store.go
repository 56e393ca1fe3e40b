// README: Trip store backed by PostgreSQL; all transitions are conditional updates.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linehaul/internal/maps"
	"linehaul/internal/types"
)

// Store is the persistence boundary for trips. Status changes guard on both
// the expected prior status and the status version so that two conflicting
// transitions can never both win.
type Store interface {
	// Create inserts the trip only if no live trip already references its
	// vehicle; reports false otherwise.
	Create(ctx context.Context, t *Trip) (bool, error)
	// Delete removes a just-created trip; compensation path only.
	Delete(ctx context.Context, id types.ID) error
	Get(ctx context.Context, id types.ID) (*Trip, error)
	// UpdateStatus applies from -> to when the stored status and version still
	// match; a non-empty driverID overwrites the assignee at the same time.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID types.ID) (bool, error)
	// SetResources swaps driver/vehicle under the version guard without
	// touching status.
	SetResources(ctx context.Context, id types.ID, driverID, vehicleID types.ID, version int) (bool, error)
	// MarkDestinationDelivered flips one destination; false when the
	// destination is unknown or already delivered.
	MarkDestinationDelivered(ctx context.Context, tripID, parcelID types.ID, at time.Time) (bool, error)
	SetSOS(ctx context.Context, id types.ID, active bool) error
	// ActiveExistsForVehicle reports whether a live trip other than exclude
	// references the vehicle.
	ActiveExistsForVehicle(ctx context.Context, vehicleID, exclude types.ID) (bool, error)
	// ListPendingBefore returns pending trips created before the cutoff,
	// feeding the offer-expiry monitor.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Trip, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, t *Trip) (bool, error) {
	parcels := make([]string, len(t.ParcelIDs))
	for i, id := range t.ParcelIDs {
		parcels[i] = string(id)
	}
	var polyline *string
	var distM, durS *int
	var estimated *bool
	if t.Route != nil {
		polyline, distM, durS, estimated = &t.Route.Polyline, &t.Route.DistanceM, &t.Route.DurationS, &t.Route.Estimated
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO trips (
			id, code, driver_id, vehicle_id, parcel_ids, status, status_version, sos,
			start_lat, start_lng, route_polyline, route_distance_m, route_duration_s, route_estimated,
			created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		WHERE NOT EXISTS (
			SELECT 1 FROM trips
			WHERE vehicle_id = $4 AND status IN ('pending','accepted','in_progress')
		)`,
		string(t.ID), t.Code, string(t.DriverID), string(t.VehicleID), parcels,
		string(t.Status), t.StatusVersion, t.SOS,
		t.Start.Lat, t.Start.Lng, polyline, distM, durS, estimated,
		t.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	for _, d := range t.Destinations {
		_, err := s.db.Exec(ctx, `
			INSERT INTO trip_destinations (trip_id, parcel_id, lat, lng, name, seq, delivered)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
			string(t.ID), string(d.ParcelID), d.Position.Lat, d.Position.Lng, d.Name, d.Seq,
		)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *PGStore) Delete(ctx context.Context, id types.ID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM trip_destinations WHERE trip_id = $1`, string(id)); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM trips WHERE id = $1`, string(id))
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, code, driver_id, vehicle_id, parcel_ids, status, status_version, sos,
		       start_lat, start_lng, route_polyline, route_distance_m, route_duration_s, route_estimated,
		       created_at, accepted_at, started_at, completed_at, declined_at
		FROM trips WHERE id = $1`, string(id),
	)
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT parcel_id, lat, lng, name, seq, delivered, delivered_at
		FROM trip_destinations WHERE trip_id = $1 ORDER BY seq`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d Destination
		var deliveredAt *time.Time
		if err := rows.Scan(&d.ParcelID, &d.Position.Lat, &d.Position.Lng, &d.Name, &d.Seq, &d.Delivered, &deliveredAt); err != nil {
			return nil, err
		}
		d.DeliveredAt = deliveredAt
		t.Destinations = append(t.Destinations, d)
	}
	return t, rows.Err()
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID types.ID) (bool, error) {
	var d *string
	if driverID != "" {
		v := string(driverID)
		d = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE($2, driver_id),
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
		    started_at = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    declined_at = CASE WHEN $1 = 'declined' THEN NOW() ELSE declined_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to), d, string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetResources(ctx context.Context, id types.ID, driverID, vehicleID types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET driver_id = $1, vehicle_id = $2, status_version = status_version + 1
		WHERE id = $3 AND status_version = $4`,
		string(driverID), string(vehicleID), string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) MarkDestinationDelivered(ctx context.Context, tripID, parcelID types.ID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trip_destinations
		SET delivered = TRUE, delivered_at = $1
		WHERE trip_id = $2 AND parcel_id = $3 AND NOT delivered`,
		at, string(tripID), string(parcelID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetSOS(ctx context.Context, id types.ID, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE trips SET sos = $1 WHERE id = $2`, active, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ActiveExistsForVehicle(ctx context.Context, vehicleID, exclude types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trips
			WHERE vehicle_id = $1 AND id <> $2
			  AND status IN ('pending','accepted','in_progress')
		)`, string(vehicleID), string(exclude),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, code, driver_id, vehicle_id, parcel_ids, status, status_version, sos,
		       start_lat, start_lng, route_polyline, route_distance_m, route_duration_s, route_estimated,
		       created_at, accepted_at, started_at, completed_at, declined_at
		FROM trips WHERE status = 'pending' AND created_at < $1`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	var actorID *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actorID = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_state_events (trip_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.TripID), string(e.FromStatus), string(e.ToStatus), e.ActorType, actorID, e.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*Trip, error) {
	var t Trip
	var parcels []string
	var polyline *string
	var distM, durS *int
	var estimated *bool
	err := row.Scan(
		&t.ID, &t.Code, &t.DriverID, &t.VehicleID, &parcels, &t.Status, &t.StatusVersion, &t.SOS,
		&t.Start.Lat, &t.Start.Lng, &polyline, &distM, &durS, &estimated,
		&t.CreatedAt, &t.AcceptedAt, &t.StartedAt, &t.CompletedAt, &t.DeclinedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ParcelIDs = make([]types.ID, len(parcels))
	for i, p := range parcels {
		t.ParcelIDs[i] = types.ID(p)
	}
	if polyline != nil {
		t.Route = &maps.RouteSummary{Polyline: *polyline}
		if distM != nil {
			t.Route.DistanceM = *distM
		}
		if durS != nil {
			t.Route.DurationS = *durS
		}
		if estimated != nil {
			t.Route.Estimated = *estimated
		}
	}
	return &t, nil
}
