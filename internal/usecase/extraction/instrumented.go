// Package extraction holds the decorators wrapped around a feature extraction provider.
package extraction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

// Instrumented wraps an Extractor with request metrics and logging.
// Provider-specific error metrics are recorded by the providers themselves.
type Instrumented struct {
	inner    domain.Extractor
	provider string
	logger   *zap.Logger
}

// NewInstrumented wraps an extractor with observability.
func NewInstrumented(inner domain.Extractor, provider string, logger *zap.Logger) *Instrumented {
	return &Instrumented{inner: inner, provider: provider, logger: logger}
}

// Extract delegates to the inner extractor and records the outcome.
func (p *Instrumented) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	start := time.Now()

	emb, err := p.inner.Extract(ctx, image)

	duration := time.Since(start)
	metrics.ExtractionDuration.WithLabelValues(p.provider).Observe(duration.Seconds())

	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(p.provider, "error").Inc()
		p.logger.Error("Feature extraction failed",
			zap.String("provider", p.provider),
			zap.Int("image_bytes", len(image)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.Embedding{}, fmt.Errorf("extract: %w", err)
	}
	metrics.ExtractionRequestsTotal.WithLabelValues(p.provider, "ok").Inc()

	p.logger.Debug("Feature extraction completed",
		zap.String("provider", p.provider),
		zap.Int("image_bytes", len(image)),
		zap.Duration("duration", duration),
		zap.Int("dimensions", emb.Dim()),
	)
	return emb, nil
}

// Dimensions returns the inner extractor's output size.
func (p *Instrumented) Dimensions() int { return p.inner.Dimensions() }

// HealthCheck delegates to the inner extractor when it supports it.
func (p *Instrumented) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
	}
	return nil
}
