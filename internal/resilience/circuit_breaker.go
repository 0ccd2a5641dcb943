// Package resilience provides retry-with-backoff and circuit breaker
// primitives to guard the two suspension points most prone to cascading
// failure: the remote transport's Execute call and the model's Complete
// call.
package resilience

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// CircuitState is the breaker's current mode.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// SleepWindow is how long the circuit stays open before probing with
	// a half-open trial request.
	SleepWindow time.Duration
	// HalfOpenSuccesses is the number of consecutive half-open successes
	// required to close the circuit again.
	HalfOpenSuccesses int
	Logger            coreapi.Logger
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		SleepWindow:       30 * time.Second,
		HalfOpenSuccesses: 2,
		Logger:            coreapi.NoOpLogger{},
	}
}

// CircuitBreaker is a consecutive-failure breaker: closed allows every
// call, open rejects every call until SleepWindow elapses, half-open lets
// a bounded number of trial calls through to decide whether to close or
// reopen.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	consecutiveFail int
	halfOpenOK      int
	openedAt        time.Time
}

// NewCircuitBreaker builds a breaker from config, defaulting a nil config.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.Logger == nil {
		config.Logger = coreapi.NoOpLogger{}
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpenLocked()
	return cb.state
}

// maybeHalfOpenLocked transitions Open->HalfOpen once SleepWindow elapses.
// Caller must hold cb.mu.
func (cb *CircuitBreaker) maybeHalfOpenLocked() {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.SleepWindow {
		cb.state = StateHalfOpen
		cb.halfOpenOK = 0
	}
}

// Execute runs fn with circuit-breaker protection, returning
// coreapi.ErrCircuitBreakerOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.mu.Lock()
	cb.maybeHalfOpenLocked()
	if cb.state == StateOpen {
		cb.mu.Unlock()
		cb.config.Logger.Debug("circuit breaker rejected call", map[string]interface{}{
			"name": cb.config.Name,
		})
		return fmt.Errorf("%s: %w", cb.config.Name, coreapi.ErrCircuitBreakerOpen)
	}
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.consecutiveFail++
		if cb.state == StateHalfOpen || cb.consecutiveFail >= cb.config.FailureThreshold {
			if cb.state != StateOpen {
				cb.config.Logger.Warn("circuit breaker opened", map[string]interface{}{
					"name":             cb.config.Name,
					"consecutive_fail": cb.consecutiveFail,
				})
			}
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
		return err
	}

	cb.consecutiveFail = 0
	if cb.state == StateHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.config.HalfOpenSuccesses {
			cb.state = StateClosed
			cb.config.Logger.Info("circuit breaker closed", map[string]interface{}{"name": cb.config.Name})
		}
	} else {
		cb.state = StateClosed
	}
	return nil
}

// RetryConfig configures exponential backoff with jitter.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry calls fn until it succeeds, ctx is cancelled, or MaxAttempts is
// exhausted, sleeping with exponential backoff and jitter between
// attempts.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", config.MaxAttempts, lastErr, coreapi.ErrMaxRetriesExceeded)
}
