// Package featcache caches image embeddings by content hash in an in-process
// LRU (L1) backed by a shared key-value store (L2).
package featcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/vecsight/internal/db"
	"github.com/kailas-cloud/vecsight/internal/domain"
)

// store is the consumer interface for the L2 cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config tunes the cache layers.
type Config struct {
	KeyPrefix string        // L2 key namespace, e.g. "vecsight:"
	L1Size    int           // LRU entries; 0 disables L1
	TTL       time.Duration // L2 expiry
}

// CachedExtractor memoizes an inner extractor. Identical images extracted
// concurrently share a single inner call, which is cancelled once no caller
// is left waiting for it.
type CachedExtractor struct {
	inner      domain.Extractor
	store      store
	l1         *lru.Cache[string, domain.Embedding]
	group      singleflight.Group
	mu         sync.Mutex
	flights    map[string]*flight
	prefix     string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. s may be nil (L1 only).
// cacheTotal is a counter vec with labels "layer" and "result", passed explicitly.
func New(
	inner domain.Extractor,
	s store,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) (*CachedExtractor, error) {
	c := &CachedExtractor{
		inner:      inner,
		store:      s,
		prefix:     cfg.KeyPrefix + "feat_cache:",
		ttl:        cfg.TTL,
		cacheTotal: cacheTotal,
		logger:     logger,
		flights:    make(map[string]*flight),
	}
	if cfg.L1Size > 0 {
		l1, err := lru.New[string, domain.Embedding](cfg.L1Size)
		if err != nil {
			return nil, fmt.Errorf("create l1 cache: %w", err)
		}
		c.l1 = l1
	}
	return c, nil
}

// Dimensions reports the inner extractor's dimension.
func (c *CachedExtractor) Dimensions() int { return c.inner.Dimensions() }

// HealthCheck delegates to the inner extractor when it supports it.
func (c *CachedExtractor) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
	}
	return nil
}

// Extract returns a cached embedding or calls the inner extractor.
// Cache failures degrade to an uncached extraction.
func (c *CachedExtractor) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	key := contentKey(image)

	if emb, ok := c.getL1(key); ok {
		return emb, nil
	}
	if emb, ok := c.getL2(ctx, key); ok {
		c.putL1(key, emb)
		return emb, nil
	}

	ch, f := c.join(ctx, key, image)
	defer c.leave(f)

	select {
	case <-ctx.Done():
		return domain.Embedding{}, ctx.Err() //nolint:wrapcheck // context error is self-describing
	case res := <-ch:
		if res.Err != nil {
			return domain.Embedding{}, fmt.Errorf("extract features: %w", res.Err)
		}
		emb, _ := res.Val.(domain.Embedding) //nolint:errcheck // only Embedding is ever returned
		return emb, nil
	}
}

// flight is one shared inner extraction and the number of callers waiting on it.
type flight struct {
	ctx     context.Context //nolint:containedctx // outlives any single caller
	cancel  context.CancelFunc
	waiters int
}

// join attaches the caller to the live extraction of key, starting a new one
// when none is live or the live one was abandoned by all its callers.
func (c *CachedExtractor) join(
	ctx context.Context, key string, image []byte,
) (<-chan singleflight.Result, *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[key]
	if !ok || f.waiters == 0 {
		c.group.Forget(key)
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++

	ch := c.group.DoChan(key, func() (any, error) {
		defer c.finish(key, f)
		emb, err := c.inner.Extract(f.ctx, image)
		if err != nil {
			return domain.Embedding{}, err
		}
		c.putL1(key, emb)
		c.putL2(context.WithoutCancel(f.ctx), key, emb)
		return emb, nil
	})
	return ch, f
}

// leave detaches a caller; the last one out cancels the shared call.
func (c *CachedExtractor) leave(f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters == 0 {
		f.cancel()
	}
}

func (c *CachedExtractor) finish(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[key] == f {
		c.group.Forget(key)
		delete(c.flights, key)
	}
}

func (c *CachedExtractor) getL1(key string) (domain.Embedding, bool) {
	if c.l1 == nil {
		return domain.Embedding{}, false
	}
	emb, ok := c.l1.Get(key)
	c.inc("l1", ok)
	return emb, ok
}

func (c *CachedExtractor) putL1(key string, emb domain.Embedding) {
	if c.l1 != nil {
		c.l1.Add(key, emb)
	}
}

func (c *CachedExtractor) getL2(ctx context.Context, key string) (domain.Embedding, bool) {
	if c.store == nil {
		return domain.Embedding{}, false
	}
	data, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached features", zap.String("key", key), zap.Error(err))
		}
		c.inc("l2", false)
		return domain.Embedding{}, false
	}

	vec, err := bytesToVector(data)
	if err != nil || len(vec) != c.inner.Dimensions() {
		c.logger.Warn("Discarding malformed cached features",
			zap.String("key", key), zap.Int("bytes", len(data)), zap.Error(err))
		c.inc("l2", false)
		return domain.Embedding{}, false
	}
	c.inc("l2", true)
	return domain.ReconstructEmbedding(vec), true
}

func (c *CachedExtractor) putL2(ctx context.Context, key string, emb domain.Embedding) {
	if c.store == nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, c.prefix+key, vectorToBytes(emb.Values()), c.ttl); err != nil {
		c.logger.Warn("Failed to cache features", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedExtractor) inc(layer string, hit bool) {
	if c.cacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheTotal.WithLabelValues(layer, result).Inc()
}

// contentKey hashes the raw image bytes.
func contentKey(image []byte) string {
	h := sha256.Sum256(image)
	return hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid feature cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
