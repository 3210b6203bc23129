package app

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config holds the stream settings.
type Config struct {
	PollingInterval  time.Duration // Time between polls when no head hint arrives
	MaxReorgDepth    int           // Ancestors fetched before a reorg is unrecoverable
	RetryCount       int           // Retries shared by all fetches of one poll cycle
	RetryDelay       time.Duration // Initial backoff
	MaxRetryDelay    time.Duration // Backoff ceiling
	FetchTimeout     time.Duration // Bound on a single fetch
	WindowCapacity   int           // Headers kept for reorg detection
	RequireFeeFields bool          // Reject headers without a base fee
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollingInterval: 12 * time.Second, // one slot
		MaxReorgDepth:   64,
		RetryCount:      3,
		RetryDelay:      500 * time.Millisecond,
		MaxRetryDelay:   10 * time.Second,
		FetchTimeout:    10 * time.Second,
		WindowCapacity:  256,
	}
}

// Validate checks the settings are usable.
func (c Config) Validate() error {
	switch {
	case c.PollingInterval <= 0:
		return fmt.Errorf("polling interval must be positive")
	case c.MaxReorgDepth <= 0:
		return fmt.Errorf("max reorg depth must be positive")
	case c.RetryCount < 0:
		return fmt.Errorf("retry count must not be negative")
	case c.RetryDelay <= 0:
		return fmt.Errorf("retry delay must be positive")
	case c.FetchTimeout <= 0:
		return fmt.Errorf("fetch timeout must be positive")
	case c.WindowCapacity <= 0:
		return fmt.Errorf("window capacity must be positive")
	}
	return nil
}

func (c Config) backOff() *backoff.ExponentialBackOff {
	return newBackOff(c.RetryDelay, c.MaxRetryDelay)
}

func newBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	if max > 0 {
		b.MaxInterval = max
	}
	return b
}
