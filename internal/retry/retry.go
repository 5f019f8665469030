// Package retry runs an operation again after transient failures, backing
// off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	// Zero or negative means a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; later waits double
	// up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors. Nil retries every error.
	ShouldRetry func(err error) bool
}

// After lets an operation ask for a specific wait before the next attempt,
// for example from an HTTP Retry-After header.
type After interface {
	RetryAfter() time.Duration
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		wait := delay
		var ra After
		if errors.As(lastErr, &ra) && ra.RetryAfter() > 0 {
			wait = min(ra.RetryAfter(), cfg.MaxDelay)
		}
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(wait):
		}
		delay = min(delay*2, cfg.MaxDelay)
	}
	return lastErr
}

// Transient marks err as worth another attempt, with an optional wait hint.
func Transient(err error, after time.Duration) error {
	return &transientError{err: err, after: after}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

type transientError struct {
	err   error
	after time.Duration
}

func (e *transientError) Error() string             { return e.err.Error() }
func (e *transientError) Unwrap() error             { return e.err }
func (e *transientError) RetryAfter() time.Duration { return e.after }

// ParseRetryAfter reads a Retry-After header given in seconds. HTTP dates and
// malformed values yield zero.
func ParseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
