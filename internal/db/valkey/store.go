// Package valkey adapts the Redis store to valkey-search, which rejects
// FT.SEARCH queries that carry no KNN clause.
package valkey

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecsight/internal/db"
	dbRedis "github.com/kailas-cloud/vecsight/internal/db/redis"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds connection parameters for a Valkey store.
type Config = dbRedis.Config

// Store is a Redis store with SCAN-based counting.
type Store struct {
	*dbRedis.Store
}

// NewStore creates a Valkey store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	s, err := dbRedis.NewStore(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	return &Store{Store: s}, nil
}

// SearchCount returns document count. "*" and single-tag queries are answered
// with SCAN (+HGET) because valkey-search has no bare FT.SEARCH.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	if query == "*" {
		return s.scanCount(ctx, index, "", "")
	}
	if field, value, ok := parseTagQuery(query); ok {
		return s.scanCount(ctx, index, field, value)
	}
	return s.Store.SearchCount(ctx, index, query) //nolint:wrapcheck // db.Error from the embedded store
}

func (s *Store) scanCount(ctx context.Context, index, field, value string) (int, error) {
	keys, err := s.Scan(ctx, indexToKeyPrefix(index)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan for count: %w", err)
	}
	if field == "" {
		return len(keys), nil
	}

	cmds := make(rueidis.Commands, 0, len(keys))
	client := s.Client()
	for _, key := range keys {
		cmds = append(cmds, client.B().Hget().Key(key).Field(field).Build())
	}

	count := 0
	for i, res := range client.DoMulti(ctx, cmds...) {
		v, err := res.ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue // deleted between SCAN and HGET, or not an image hash
			}
			return 0, &db.Error{Op: db.OpHGet, Key: keys[i], Err: err}
		}
		if v == value {
			count++
		}
	}
	return count, nil
}

// parseTagQuery recognizes "@field:{value}" with an unescaped value.
func parseTagQuery(q string) (field, value string, ok bool) {
	if !strings.HasPrefix(q, "@") || !strings.HasSuffix(q, "}") {
		return "", "", false
	}
	field, rest, found := strings.Cut(q[1:], ":{")
	if !found || field == "" {
		return "", "", false
	}
	value = rest[:len(rest)-1]
	if value == "" || strings.ContainsAny(value, `\{}|`) {
		return "", "", false
	}
	return field, value, true
}

// indexToKeyPrefix converts index name to a SCAN prefix.
// "vecsight:img:idx" -> "vecsight:img:"
func indexToKeyPrefix(index string) string {
	if strings.HasSuffix(index, ":idx") {
		return index[:len(index)-3]
	}
	return index + ":"
}
