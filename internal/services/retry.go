package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tripnest/booking-backend/internal/database"
)

// RetryPolicy bounds retries of store calls that failed without applying
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	MaxElapsed time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		Initial:    50 * time.Millisecond,
		Max:        2 * time.Second,
		MaxElapsed: 10 * time.Second,
		Multiplier: 2,
		Jitter:     0.5,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = p.MaxElapsed
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.RandomizationFactor = p.Jitter
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxRetries)), ctx)
}

// withRetry runs op, retrying only transient store failures. Exhausting the
// policy yields ErrServiceUnavailable; any other error is returned unchanged.
func withRetry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	result, err := backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !database.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx))

	if err != nil && database.IsTransient(err) {
		return result, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return result, err
}
