package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SleepWindow:      50 * time.Millisecond,
	})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom, "attempt %d", i)
	}

	require.Equal(t, StateOpen, cb.State(), "expected circuit to be open after 3 failures")

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn should not run while circuit is open")
		return nil
	})
	assert.Error(t, err, "expected rejection error while circuit is open")
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:              "test",
		FailureThreshold:  1,
		SleepWindow:       10 * time.Millisecond,
		HalfOpenSuccesses: 2,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	require.Equal(t, StateOpen, cb.State(), "expected open after one failure with threshold 1")

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State(), "expected half-open after sleep window")

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
		assert.NoError(t, err, "half-open trial %d should pass through", i)
	}

	assert.Equal(t, StateClosed, cb.State(), "expected closed after half-open successes")
}

func TestRetrySucceedsEventually(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err, "expected eventual success")
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
	err := Retry(context.Background(), config, func() error { return errors.New("always fails") })
	assert.Error(t, err, "expected error after exhausting retries")
}
