package shadow

import (
	"errors"
	"fmt"
)

// Sentinel errors for the core's error taxonomy (spec.md §7). Use
// errors.Is(err, shadow.ErrRetryable) (etc.) to classify an error returned
// from Request.Execute.
var (
	// ErrRetryable marks a transient cloud/network/local-contention failure.
	// The strategy retries it with back-off (internal/retry).
	ErrRetryable = errors.New("shadow: retryable error")
	// ErrSkip marks a permanent logical failure (authorization, malformed
	// document). The request is dropped after logging; sync information is
	// left unchanged.
	ErrSkip = errors.New("shadow: permanent error, request dropped")
	// ErrConflict marks a cloud version mismatch. Callers promote it to a
	// FullShadow enqueue; it is never surfaced past the strategy.
	ErrConflict = errors.New("shadow: cloud version conflict")
	// ErrInterrupted marks cooperative cancellation. The worker exits cleanly.
	ErrInterrupted = errors.New("shadow: interrupted")
	// ErrFatal marks an invariant violation (e.g., a sync-info row missing
	// under lock). The strategy stops on this error.
	ErrFatal = errors.New("shadow: fatal invariant violation")
)

// Error wraps a sentinel with request context for logging.
type Error struct {
	Key Key
	Op  string
	Err error // one of the sentinels above, via errors.Is
}

func (e *Error) Error() string {
	return fmt.Sprintf("shadow: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a retryable shadow.Error.
func Retryable(key Key, op string, err error) error {
	return &Error{Key: key, Op: op, Err: errors.Join(ErrRetryable, err)}
}

// Skip wraps err as a permanent, dropped shadow.Error.
func Skip(key Key, op string, err error) error {
	return &Error{Key: key, Op: op, Err: errors.Join(ErrSkip, err)}
}

// Fatal wraps err as a fatal shadow.Error.
func Fatal(key Key, op string, err error) error {
	return &Error{Key: key, Op: op, Err: errors.Join(ErrFatal, err)}
}

// IsRetryable reports whether err (or anything it wraps) is retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsSkip reports whether err (or anything it wraps) should be skipped.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkip)
}

// IsFatal reports whether err (or anything it wraps) is fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
