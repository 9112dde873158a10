package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecsight/internal/db"
)

// Get returns the raw value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case err == nil:
		return data, nil
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	default:
		return nil, wrap(db.OpGet, key, err)
	}
}

// SetWithTTL stores value as a binary string. ttl <= 0 keeps it without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.b().Set().Key(key).Value(rueidis.BinaryString(value))
	if ttl <= 0 {
		return wrap(db.OpSet, key, s.do(ctx, set.Build()).Error())
	}
	return wrap(db.OpSet, key, s.do(ctx, set.Ex(ttl).Build()).Error())
}

// Incr bumps the counter at key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.do(ctx, s.b().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, wrap(db.OpIncr, key, err)
	}
	return n, nil
}
