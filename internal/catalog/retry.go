package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"storefront-catalog/internal/store"
)

// Errors returned by the catalog layer.
var (
	// ErrStoreUnavailable wraps a transient store failure that outlived every retry.
	ErrStoreUnavailable = errors.New("catalog: store unavailable")
	ErrSKURequired      = errors.New("catalog: sku is required")
	ErrInvalidInput     = errors.New("catalog: invalid input")
)

// RetryPolicy bounds how transient store errors are retried.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Doubling    bool
}

// DefaultRetryPolicy is three attempts spaced by 200ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 200 * time.Millisecond}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Backoff)
	if p.Doubling {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Backoff
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		exp.MaxInterval = p.Backoff << (p.attempts() - 1)
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts()-1)), ctx)
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the policy is exhausted. Every failed attempt that will be retried is logged.
func withRetry[T any](ctx context.Context, e *Engine, op string, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !store.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, e.retry.backOff(ctx), func(err error, wait time.Duration) {
		e.logger.Printf("WARN: %s attempt %d/%d hit a transient store error, retrying in %s: %v",
			op, attempt, e.retry.attempts(), wait, err)
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if store.IsTransient(err) {
		e.logger.Printf("ERROR: %s failed after %d attempts: %v", op, attempt, err)
		return zero, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	return zero, err
}
