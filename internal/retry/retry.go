// Package retry provides an explicit retry policy for calls to external
// services. The policy is a value passed to call sites rather than a
// decorator, so retry behaviour is visible where it applies.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/formsage/formsage/internal/core/domain"
)

// Policy describes how a call is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponentially growing wait.
	MaxBackoff time.Duration

	// Jitter adds up to this fraction of the backoff as random delay.
	Jitter float64

	// Retryable reports whether an error is worth another attempt.
	// When nil, DefaultRetryable is used.
	Retryable func(error) bool

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the embedding/generation call sites: three attempts
// with exponential backoff from 1s toward a 10s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Jitter:         0.2,
	}
}

// DefaultRetryable treats everything as transient except malformed input
// and configuration errors, which retrying cannot fix.
func DefaultRetryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Do runs fn until it succeeds, a non-retryable error occurs, or attempts
// are exhausted. The last error is returned unwrapped so callers can still
// inspect it with errors.Is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	backoff := p.InitialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || !retryable(err) {
			return err
		}

		wait := backoff
		if p.Jitter > 0 {
			wait += time.Duration(rand.Float64() * p.Jitter * float64(backoff))
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
