package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/logger"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

// RetryConfig bounds vector store calls.
type RetryConfig struct {
	Attempts        int           // including the first; <= 0 means 1
	Timeout         time.Duration // per attempt; 0 disables
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns three attempts of 2s each.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:        3,
		Timeout:         2 * time.Second,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// permanent errors are client or data errors that no retry can fix.
var permanent = []error{
	domain.ErrDuplicateID,
	domain.ErrDimensionMismatch,
	domain.ErrNotFound,
	domain.ErrInvalidRecord,
	domain.ErrInvalidCategory,
	domain.ErrInvalidVector,
}

func isPermanent(err error) bool {
	for _, p := range permanent {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}

// withRetry runs fn under a per-attempt timeout with exponential backoff.
// Transient failures that outlast the budget become domain.ErrStoreUnavailable;
// caller cancellation is returned as is.
func withRetry[T any](
	ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) (T, error),
) (T, error) {
	attempts := max(cfg.Attempts, 1)
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialInterval),
		backoff.WithMaxInterval(cfg.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	operation := func() (T, error) {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		defer cancel()

		res, err := fn(attemptCtx)
		if err == nil {
			return res, nil
		}
		if isPermanent(err) || ctx.Err() != nil {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, next time.Duration) {
		metrics.StoreRetriesTotal.WithLabelValues(op).Inc()
		logger.FromContext(ctx).Warn("Vector store call failed, retrying",
			zap.String("op", op),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	start := time.Now()
	res, err := backoff.RetryNotifyWithData(operation, b, notify)
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.StoreOperationsTotal.WithLabelValues(op, "ok").Inc()
		return res, nil
	case ctx.Err() != nil:
		metrics.StoreOperationsTotal.WithLabelValues(op, "cancelled").Inc()
		var zero T
		return zero, ctx.Err() //nolint:wrapcheck // caller cancellation
	case isPermanent(err):
		metrics.StoreOperationsTotal.WithLabelValues(op, "rejected").Inc()
		var zero T
		return zero, fmt.Errorf("%s: %w", op, err)
	default:
		metrics.StoreOperationsTotal.WithLabelValues(op, "unavailable").Inc()
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
	}
}
