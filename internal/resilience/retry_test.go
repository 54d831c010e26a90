package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		Attempts: attempts,
		Backoff:  Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
	}
}

func TestBackoff_DefaultSchedule(t *testing.T) {
	b := DefaultPolicy().Backoff
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(10))
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := b.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestNewPolicy(t *testing.T) {
	p := NewPolicy(5, 200, 3000)
	assert.Equal(t, 5, p.Attempts)
	assert.Equal(t, 200*time.Millisecond, p.Backoff.Initial)
	assert.Equal(t, 3*time.Second, p.Backoff.Max)

	d := NewPolicy(0, 0, 0)
	assert.Equal(t, DefaultPolicy(), d)
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := Retry(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return MarkTransient(errors.New("503"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return errors.New("404 not found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return MarkTransient(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "timeout")
}

func TestRetry_CustomRetryable(t *testing.T) {
	calls := 0
	p := fastPolicy(4)
	p.Retryable = func(error) bool { return true }
	err := Retry(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Backoff: Backoff{Initial: time.Hour}}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := Retry(ctx, p, func(context.Context) error {
		calls++
		return MarkTransient(errors.New("reset"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryValue_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", MarkTransient(errors.New("429"), 429)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestLogRetry(t *testing.T) {
	hook := LogRetry(zap.NewNop(), "fetch")
	assert.NotPanics(t, func() { hook(1, errors.New("x"), time.Second) })
}
