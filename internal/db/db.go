package db

import (
	"context"
	"time"
)

// Store is everything the Redis-compatible backends offer. The image
// repository and the feature cache each depend on a narrow subset.
//
//nolint:interfacebloat // facade; consumers declare narrow sub-interfaces
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore holds image records as hashes.
type HashStore interface {
	// HSetIfAbsent atomically creates the hash at key and reports false when
	// key already exists.
	HSetIfAbsent(ctx context.Context, key string, fields map[string]string) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore backs the feature cache and the insertion sequence.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetWithTTL stores value; ttl <= 0 keeps it without expiry.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr atomically increments a counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// IndexManager creates and inspects FT indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// IndexVectorDim reports the DIM declared for a vector attribute of an existing index.
	IndexVectorDim(ctx context.Context, name, attribute string) (int, error)
}

// Searcher runs FT.SEARCH queries.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}
