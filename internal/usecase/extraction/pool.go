package extraction

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

// Pool bounds concurrent extractions to a fixed number of workers. Callers
// beyond that wait; with maxQueue > 0, callers beyond maxQueue waiters are
// rejected with ErrExtractorBusy.
type Pool struct {
	inner    domain.Extractor
	sem      *semaphore.Weighted
	maxQueue int64
	waiting  atomic.Int64
}

// NewPool wraps inner with a worker limit. maxQueue 0 means unbounded waiting.
func NewPool(inner domain.Extractor, workers, maxQueue int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if maxQueue < 0 {
		return nil, fmt.Errorf("max queue must be >= 0, got %d", maxQueue)
	}
	return &Pool{
		inner:    inner,
		sem:      semaphore.NewWeighted(int64(workers)),
		maxQueue: int64(maxQueue),
	}, nil
}

// Extract runs inner.Extract once a worker slot is free.
func (p *Pool) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	if err := p.acquire(ctx); err != nil {
		return domain.Embedding{}, err
	}
	metrics.ExtractionInFlight.Inc()
	defer func() {
		metrics.ExtractionInFlight.Dec()
		p.sem.Release(1)
	}()

	return p.inner.Extract(ctx, image) //nolint:wrapcheck // passthrough
}

// Waiting returns the number of callers queued for a slot.
func (p *Pool) Waiting() int { return int(p.waiting.Load()) }

// Dimensions returns the inner extractor's output size.
func (p *Pool) Dimensions() int { return p.inner.Dimensions() }

// HealthCheck delegates to the inner extractor when it supports it.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
	}
	return nil
}

func (p *Pool) acquire(ctx context.Context) error {
	if p.sem.TryAcquire(1) {
		return nil
	}

	n := p.waiting.Add(1)
	defer p.waiting.Add(-1)
	if p.maxQueue > 0 && n > p.maxQueue {
		return domain.ErrExtractorBusy
	}

	metrics.ExtractionQueued.Inc()
	defer metrics.ExtractionQueued.Dec()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err //nolint:wrapcheck // caller cancellation
	}
	return nil
}
