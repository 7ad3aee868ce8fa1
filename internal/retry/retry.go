// Package retry implements the rate-limited fetcher: bounded retry with
// exponential backoff around external calls. Only transient failures (rate
// limits, timeouts) are retried; anything else propagates immediately.
package retry

import (
	"context"
	"time"

	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt; doubles each retry
}

// DefaultConfig returns the default retry configuration.
// Pattern for 3 attempts at 1s: 1s, 2s, no sleep after the last attempt.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
	}
}

// Func is an external call that can be retried
type Func func(ctx context.Context) error

// Do executes fn, retrying on transient failures with exponential backoff.
// The delay for attempt n (0-based) is InitialDelay << n. Non-transient
// failures and exhausted attempts return the last error unchanged.
func Do(ctx context.Context, cfg Config, fn Func) error {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !apperrors.IsTransient(err) || attempt == cfg.MaxAttempts-1 {
			return err
		}

		delay := cfg.InitialDelay << uint(attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt + 1,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Transient failure, retrying with backoff")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
