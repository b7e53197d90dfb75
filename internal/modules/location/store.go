// README: Location store backed by a Redis hash per ride, updated by a seq-guarded script.
package location

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

// ErrStale is returned when an update's seq is not newer than the stored one.
var ErrStale = errors.New("stale location update")

var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'lat', ARGV[2], 'lng', ARGV[3], 'at', ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[5])
return 1
`)

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redis *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: redis, ttl: ttl}
}

func key(rideID types.ID) string {
	return "carpool:ride:" + string(rideID) + ":position"
}

func (s *Store) Set(ctx context.Context, p Position) error {
	ok, err := setIfNewer.Run(ctx, s.redis, []string{key(p.RideID)},
		p.Seq,
		strconv.FormatFloat(p.Point.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Point.Lng, 'f', -1, 64),
		p.RecordedAt.UnixMilli(),
		int(s.ttl.Seconds()),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrStale
	}
	return nil
}

func (s *Store) Get(ctx context.Context, rideID types.ID) (*Position, error) {
	vals, err := s.redis.HGetAll(ctx, key(rideID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNoPosition
	}
	p := &Position{RideID: rideID}
	if p.Seq, err = strconv.ParseInt(vals["seq"], 10, 64); err != nil {
		return nil, err
	}
	if p.Point.Lat, err = strconv.ParseFloat(vals["lat"], 64); err != nil {
		return nil, err
	}
	if p.Point.Lng, err = strconv.ParseFloat(vals["lng"], 64); err != nil {
		return nil, err
	}
	ms, err := strconv.ParseInt(vals["at"], 10, 64)
	if err != nil {
		return nil, err
	}
	p.RecordedAt = time.UnixMilli(ms).UTC()
	return p, nil
}

// Clear drops the ride's position once it is no longer shared.
func (s *Store) Clear(ctx context.Context, rideID types.ID) error {
	return s.redis.Del(ctx, key(rideID)).Err()
}
