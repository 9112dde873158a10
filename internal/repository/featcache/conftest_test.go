package featcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/db"
	"github.com/kailas-cloud/vecsight/internal/domain"
)

type mockExtractor struct {
	vec     []float32
	err     error
	calls   atomic.Int32
	release chan struct{} // when non-nil, Extract blocks until closed or ctx is done
	stopped chan struct{} // when non-nil, closed if Extract gave up on ctx
	stopOne sync.Once
}

func (m *mockExtractor) Extract(ctx context.Context, _ []byte) (domain.Embedding, error) {
	m.calls.Add(1)
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			if m.stopped != nil {
				m.stopOne.Do(func() { close(m.stopped) })
			}
			return domain.Embedding{}, ctx.Err()
		}
	}
	if m.err != nil {
		return domain.Embedding{}, m.err
	}
	return domain.NewEmbedding(m.vec)
}

func (m *mockExtractor) Dimensions() int { return len(m.vec) }

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func newCacheCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_feature_cache_total"}, []string{"layer", "result"})
}

func newTestCachedExtractor(
	t *testing.T, inner *mockExtractor, l1Size int,
) (*CachedExtractor, *mockKVStore, *prometheus.CounterVec) {
	t.Helper()
	ms := &mockKVStore{}
	counter := newCacheCounter()
	ce, err := New(inner, ms, Config{KeyPrefix: "vecsight:", L1Size: l1Size, TTL: time.Hour}, counter, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ce, ms, counter
}
