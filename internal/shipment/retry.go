// internal/shipment/retry.go
package shipment

import (
	"context"
	"time"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/metrics"
)

// RetryPolicy bounds retries of transient store failures with exponential
// backoff.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		InitialInterval:    100 * time.Millisecond,
		BackoffCoefficient: 2,
		MaxInterval:        2 * time.Second,
	}
}

// Backoff is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialInterval)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffCoefficient
	}
	if ceiling := float64(p.MaxInterval); p.MaxInterval > 0 && d > ceiling {
		d = ceiling
	}
	return time.Duration(d)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx ends. fn receives the 1-based attempt number.
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil || !apperrors.IsRetryable(err) || attempt == attempts {
			return err
		}
		metrics.RetryAttemptsTotal.WithLabelValues(op).Inc()

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperrors.Transport(op, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
