package extraction

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

// Loader constructs the underlying provider. It may be slow (model load).
type Loader func(ctx context.Context) (domain.Extractor, error)

// Lazy loads its provider on first use. Concurrent first callers wait on the
// same load; a failed load is not kept and the next call tries again.
type Lazy struct {
	load     Loader
	provider string
	dim      int
	logger   *zap.Logger

	mu    sync.Mutex
	inner domain.Extractor
}

// NewLazy returns an extractor that calls load on first use. dim is reported
// by Dimensions before the provider is loaded.
func NewLazy(load Loader, provider string, dim int, logger *zap.Logger) *Lazy {
	return &Lazy{load: load, provider: provider, dim: dim, logger: logger}
}

// Load forces the provider to load. Used for startup warmup.
func (l *Lazy) Load(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

// Loaded reports whether the provider is ready.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner != nil
}

// Extract loads the provider if needed and delegates.
func (l *Lazy) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return domain.Embedding{}, err
	}
	return inner.Extract(ctx, image) //nolint:wrapcheck // passthrough
}

// Dimensions returns the configured output size.
func (l *Lazy) Dimensions() int { return l.dim }

// HealthCheck reports a provider that cannot be loaded; an unloaded provider
// is not loaded just to be checked.
func (l *Lazy) HealthCheck(ctx context.Context) error {
	l.mu.Lock()
	inner := l.inner
	l.mu.Unlock()
	if inner == nil {
		return nil
	}
	if hc, ok := inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
	}
	return nil
}

// Close releases the provider when it holds resources.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.inner.(io.Closer); ok {
		l.inner = nil
		return c.Close() //nolint:wrapcheck // passthrough
	}
	l.inner = nil
	return nil
}

func (l *Lazy) get(ctx context.Context) (domain.Extractor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inner != nil {
		return l.inner, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // caller cancellation
	}

	start := time.Now()
	inner, err := l.load(ctx)
	duration := time.Since(start)
	if err != nil {
		metrics.ModelLoadDuration.WithLabelValues(l.provider, "error").Observe(duration.Seconds())
		l.logger.Error("Feature model load failed",
			zap.String("provider", l.provider),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: load %s model: %w", domain.ErrExtractionFailure, l.provider, err)
	}
	if inner.Dimensions() != l.dim {
		if c, ok := inner.(io.Closer); ok {
			_ = c.Close()
		}
		metrics.ModelLoadDuration.WithLabelValues(l.provider, "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("%w: %s model produces %d dimensions, configured %d",
			domain.ErrExtractionFailure, l.provider, inner.Dimensions(), l.dim)
	}

	metrics.ModelLoadDuration.WithLabelValues(l.provider, "ok").Observe(duration.Seconds())
	l.logger.Info("Feature model loaded",
		zap.String("provider", l.provider),
		zap.Duration("duration", duration),
	)
	l.inner = inner
	return inner, nil
}
