package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls Retry. Zero values take the defaults in withDefaults.
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Base is the delay before the first retry; each retry multiplies it by
	// Factor up to Cap.
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
	// Retryable decides whether an error is worth another attempt. Nil
	// means IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 500 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = 30 * time.Second
	}
	if p.Factor <= 0 {
		p.Factor = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Retry calls fn until it succeeds, returns an error Retryable rejects, the
// attempts run out or ctx is done. It returns the last error from fn.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		t := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// backoff is the delay after the given 1-based attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := math.Min(float64(p.Base)*math.Pow(p.Factor, float64(attempt-1)), float64(p.Cap))
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns an OnRetry hook that logs each retry of op against
// service at warn level.
func LogRetries(service, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
