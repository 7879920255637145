package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ReconnectConfig holds configuration for reconnection logic.
type ReconnectConfig struct {
	MaxAttempts int           // maximum number of reconnection attempts
	Backoff     time.Duration // initial backoff between attempts
	Multiplier  float64       // exponential backoff multiplier
	MaxBackoff  time.Duration // cap on the backoff
}

// DefaultReconnectConfig returns a default reconnection configuration.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc attempts to re-establish a connection.
type ReconnectFunc func() error

// Reconnect calls fn with exponential backoff until it succeeds, the
// attempts run out, or ctx is cancelled.
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			log.Debug().Int("attempts", attempt+1).Msg("Reconnection successful")
			return nil
		}

		if attempt < config.MaxAttempts-1 {
			backoff := CalculateBackoff(attempt, config.Backoff, config.MaxBackoff, config.Multiplier)
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxAttempts).
				Dur("backoff", backoff).
				Msg("Reconnection attempt failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", config.MaxAttempts)
}
