// Package resilience provides bounded retry and circuit breaking for calls to
// court websites and the language model API.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff computes the sleep between attempts: Initial * Multiplier^n,
// capped at Max, with optional ±Jitter fraction.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Delay returns the sleep before retry number n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	mul := b.Multiplier
	if mul <= 0 {
		mul = 2
	}
	d := float64(b.Initial) * math.Pow(mul, float64(n))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Policy bounds how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	Backoff  Backoff
	// Retryable decides whether err warrants another attempt. Nil means
	// IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy is three attempts backing off 1s, 2s, 4s, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Backoff: Backoff{
			Initial:    time.Second,
			Max:        10 * time.Second,
			Multiplier: 2,
		},
	}
}

// NewPolicy builds a policy from config values, falling back to
// DefaultPolicy for any non-positive value.
func NewPolicy(attempts, initialBackoffMs, maxBackoffMs int) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if initialBackoffMs > 0 {
		p.Backoff.Initial = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.Backoff.Max = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts are spent, or ctx is done. The last error is returned.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for functions that produce a value.
func RetryValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == attempts-1 {
			break
		}

		delay := p.Backoff.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}
		if err := Sleep(ctx, delay); err != nil {
			break
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LogRetry returns an OnRetry hook that logs at warn level.
func LogRetry(log *zap.Logger, operation string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}
}
