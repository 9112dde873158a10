package redis

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecsight/internal/db"
)

// scanBatch is the COUNT hint per SCAN round trip.
const scanBatch = 500

var errNoFields = errors.New("no fields to write")

// hsetIfAbsent writes the whole hash in one step, or nothing when KEYS[1]
// already exists. ARGV holds field/value pairs.
var hsetIfAbsent = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// HSetIfAbsent creates the hash at key with fields and reports whether it did.
// An existing key is left untouched.
func (s *Store) HSetIfAbsent(ctx context.Context, key string, fields map[string]string) (bool, error) {
	if len(fields) == 0 {
		return false, wrap(db.OpHSet, key, errNoFields)
	}
	args := make([]string, 0, 2*len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, name, fields[name])
	}
	created, err := hsetIfAbsent.Exec(ctx, s.client, []string{key}, args).AsBool()
	if err != nil {
		return false, wrap(db.OpHSet, key, err)
	}
	return created, nil
}

// HGetAll returns every field of the hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, wrap(db.OpHGetAll, key, err)
	}
	return m, nil
}

// Scan collects every key matching pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		entry, err := s.do(ctx, s.b().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()).AsScanEntry()
		if err != nil {
			return nil, wrap(db.OpScan, pattern, err)
		}
		keys = append(keys, entry.Elements...)
		if cursor = entry.Cursor; cursor == 0 {
			return keys, nil
		}
	}
}
