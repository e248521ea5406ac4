// Package retry provides exponential backoff for startup fetches against
// the profile service. Chat sends are deliberately never retried; this is
// only for the initial profile load and similar one-shot reads.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// PermanentError wraps an error that should not be retried.
// Return Permanent(err) from fn to stop retries immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError to stop retries.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Config configures the retry behavior.
type Config struct {
	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// MaxAttempts limits total attempts.
	MaxAttempts int
}

// DefaultConfig returns the defaults used for profile loads.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  5,
	}
}

// Do executes fn with exponential backoff and jitter. It stops on success,
// on a PermanentError, when attempts run out, or when ctx is cancelled.
func Do(ctx context.Context, cfg Config, operation string, fn func(ctx context.Context) error) error {
	defaults := DefaultConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					"operation", operation, "attempt", attempt)
			}
			return nil
		}

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			slog.Warn("operation returned permanent error, not retrying",
				"operation", operation, "attempt", attempt, "error", permErr.Err)
			return permErr.Err
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: retries exhausted after %d attempts: %w", operation, attempt, lastErr)
		}

		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		sleepDur := delay + jitter
		slog.Info("operation failed, retrying",
			"operation", operation, "attempt", attempt,
			"delay", sleepDur.Round(time.Millisecond), "error", err)

		timer := time.NewTimer(sleepDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(math.Min(float64(delay*2), float64(cfg.MaxDelay)))
	}
}
