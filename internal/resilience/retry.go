// Package resilience provides retry, circuit-breaker, and reconnection
// helpers shared by the collaborator clients (STT, LLM, TTS).
package resilience

import (
	"errors"
	"math"
	"strings"
	"time"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxAttempts       int           // maximum number of attempts
	InitialBackoff    time.Duration // backoff before the second attempt
	MaxBackoff        time.Duration // cap on the backoff
	BackoffMultiplier float64       // exponential growth factor
	Jitter            bool          // add jitter to backoff
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// IsRetryableError decides whether an error is worth retrying.
type IsRetryableError func(error) bool

// Retry executes fn with exponential backoff until it succeeds, the
// attempts run out, or isRetryable rejects the error.
func Retry(fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}

		if attempt < config.MaxAttempts-1 {
			sleep := backoff
			if config.Jitter {
				sleep += time.Duration(float64(sleep) * 0.125)
			}
			if sleep > config.MaxBackoff {
				sleep = config.MaxBackoff
			}
			time.Sleep(sleep)

			backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	return lastErr
}

// CalculateBackoff returns the backoff for a given attempt number.
func CalculateBackoff(attempt int, initialBackoff, maxBackoff time.Duration, multiplier float64) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// IsRetryableNetworkError classifies transport-level failures that are
// worth another attempt.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"transport is closing",
		"unavailable",
		"network is unreachable",
		"no route to host",
		"deadline exceeded",
		"timeout",
		"i/o timeout",
		"resource exhausted",
		"too many connections",
		"rate limit",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RetryableError wraps an error to mark it retryable.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable; nil stays nil.
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is (or wraps) a RetryableError.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
