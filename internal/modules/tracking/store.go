// README: Tracking store backed by Redis hashes, GEO, and pub/sub.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"linehaul/internal/types"
)

var ErrNotFound = errors.New("no ongoing trip")

const (
	tripGeoKey       = "tracking:trips"
	ongoingKeyPrefix = "tracking:trip:%s"
	channelPrefix    = "tracking:trip:%s:updates"
	// Projections self-expire as a backstop in case a close event is lost.
	ongoingTTL = 48 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) CreateOngoing(ctx context.Context, o Ongoing) error {
	key := ongoingKey(o.TripID)
	pipe := s.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"driver_id":  string(o.DriverID),
		"progress":   o.Progress,
		"sos":        boolField(o.SOS),
		"has_fix":    "0",
		"updated_at": o.UpdatedAt.UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, ongoingTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Exists reports whether a projection is live for the trip.
func (s *Store) Exists(ctx context.Context, tripID types.ID) (bool, error) {
	n, err := s.redis.Exists(ctx, ongoingKey(tripID)).Result()
	return n == 1, err
}

// SetLocation writes the last known location and returns whether this was
// the trip's first fix.
func (s *Store) SetLocation(ctx context.Context, tripID types.ID, pos types.Point, address string, at time.Time) (bool, error) {
	key := ongoingKey(tripID)
	first, err := s.redis.HSetNX(ctx, key, "first_fix_at", at.UTC().Format(time.RFC3339)).Result()
	if err != nil {
		return false, err
	}
	pipe := s.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"lat":        strconv.FormatFloat(pos.Lat, 'f', -1, 64),
		"lng":        strconv.FormatFloat(pos.Lng, 'f', -1, 64),
		"address":    address,
		"has_fix":    "1",
		"updated_at": at.UTC().Format(time.RFC3339),
	})
	pipe.GeoAdd(ctx, tripGeoKey, &redis.GeoLocation{
		Name:      string(tripID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	_, err = pipe.Exec(ctx)
	return first, err
}

func (s *Store) SetProgress(ctx context.Context, tripID types.ID, progress int) error {
	return s.redis.HSet(ctx, ongoingKey(tripID), "progress", progress).Err()
}

func (s *Store) SetSOS(ctx context.Context, tripID types.ID, active bool) error {
	return s.redis.HSet(ctx, ongoingKey(tripID), "sos", boolField(active)).Err()
}

func (s *Store) Get(ctx context.Context, tripID types.ID) (*Ongoing, error) {
	fields, err := s.redis.HGetAll(ctx, ongoingKey(tripID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	o := Ongoing{TripID: tripID, DriverID: types.ID(fields["driver_id"])}
	o.HasFix = fields["has_fix"] == "1"
	o.SOS = fields["sos"] == "1"
	o.Address = fields["address"]
	if v, err := strconv.Atoi(fields["progress"]); err == nil {
		o.Progress = v
	}
	if v, err := strconv.ParseFloat(fields["lat"], 64); err == nil {
		o.Position.Lat = v
	}
	if v, err := strconv.ParseFloat(fields["lng"], 64); err == nil {
		o.Position.Lng = v
	}
	if t, err := time.Parse(time.RFC3339, fields["updated_at"]); err == nil {
		o.UpdatedAt = t
	}
	return &o, nil
}

func (s *Store) Remove(ctx context.Context, tripID types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, ongoingKey(tripID))
	pipe.ZRem(ctx, tripGeoKey, string(tripID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Publish(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, channelName(u.TripID), payload).Err()
}

// Subscribe opens the broadcast channel for one trip. The caller owns the
// returned PubSub and must close it.
func (s *Store) Subscribe(ctx context.Context, tripID types.ID) *redis.PubSub {
	return s.redis.Subscribe(ctx, channelName(tripID))
}

func ongoingKey(tripID types.ID) string {
	return fmt.Sprintf(ongoingKeyPrefix, string(tripID))
}

func channelName(tripID types.ID) string {
	return fmt.Sprintf(channelPrefix, string(tripID))
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
