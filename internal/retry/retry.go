// Package retry wraps github.com/sethvargo/go-retry with the single
// policy the sync core needs (spec.md §4.5): exponential backoff with
// jitter, a fixed attempt ceiling, classified via the caller's own
// Retryable/Skip/Fatal error taxonomy rather than HTTP status codes —
// the shadow package's own errors already carry that classification
// (shadow.IsRetryable), so this package only needs to know how to turn a
// plain error into a retry.RetryableError.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config mirrors spec.md §4.5's RetryConfig literally: initial=3s,
// max=1min, max_attempts=5, multiplier=2, jitter=±10%.
type Config struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts uint64
	Multiplier  float64
	Jitter      float64 // fraction, e.g. 0.10 for ±10%
}

// DefaultConfig is the policy spec.md §4.5 names for both the Realtime
// and Periodic strategies.
func DefaultConfig() Config {
	return Config{
		Initial:     3 * time.Second,
		Max:         time.Minute,
		MaxAttempts: 5,
		Multiplier:  2,
		Jitter:      0.10,
	}
}

// backoff builds the go-retry decorator chain for cfg: exponential growth
// that doubles on every retry (go-retry's exponential backoff has a fixed
// factor of 2; Multiplier is not read), capped at Max, ±Jitter randomized
// when Jitter > 0, bounded to MaxAttempts total tries.
func (cfg Config) backoff() (retry.Backoff, error) {
	b, err := retry.NewExponential(cfg.Initial)
	if err != nil {
		return nil, fmt.Errorf("retry: building backoff: %w", err)
	}

	b = retry.WithMaxDuration(cfg.Max*time.Duration(cfg.MaxAttempts), b)
	b = retry.WithCappedDuration(cfg.Max, b)
	if cfg.Jitter > 0 {
		b = retry.WithJitterPercent(uint64(cfg.Jitter*100), b) //nolint:gosec // fraction->percent, always small and positive
	}

	b = retry.WithMaxRetries(cfg.MaxAttempts-1, b)

	return b, nil
}

// Classifier reports whether err should be retried. The shadow package
// passes shadow.IsRetryable here so this package stays free of a direct
// dependency on the sync core's error taxonomy.
type Classifier func(error) bool

// Do runs fn under cfg's backoff policy. fn's error is retried while
// classify reports true for it; any other error (including nil) stops
// the loop immediately. ctx cancellation aborts a pending sleep.
func Do(ctx context.Context, cfg Config, classify Classifier, fn func(ctx context.Context) error) error {
	b, err := cfg.backoff()
	if err != nil {
		return err
	}

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if classify(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}
