package breaker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Classifier decides whether an error is worth retrying. 4xx/validation
// style errors should return false so they propagate immediately (spec
// §4.1, §7).
type Classifier func(error) bool

// TransientError is a marker type a caller can wrap a failure in to force
// the default Classifier to treat it as retryable (network, timeout, 5xx).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient is the default Classifier: only errors wrapping
// TransientError, or context.DeadlineExceeded, are retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var t *TransientError
	if errors.As(err, &t) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RetryPolicy wraps a Breaker with exponential backoff, per spec §4.1:
// "The breaker wraps the function; the retry policy wraps the breaker."
type RetryPolicy struct {
	Breaker    *Breaker
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Classify    Classifier
}

// NewRetryPolicy returns a policy with 3 attempts, 100ms base delay
// doubling up to a 5s cap, classifying transient failures with IsTransient.
func NewRetryPolicy(b *Breaker) *RetryPolicy {
	return &RetryPolicy{
		Breaker:     b,
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Classify:    IsTransient,
	}
}

// Do executes fn, retrying transient failures with exponential backoff
// (base * 2^attempt, capped at MaxDelay, jittered by up to 20%) as long as
// the breaker admits the call and ctx is not done. Non-transient failures
// propagate on the first attempt without consuming a retry.
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) error {
	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(p.BaseDelay, p.MaxDelay, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := p.Breaker.Execute(func() error { return fn() })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		if !classify(err) {
			return err
		}
	}
	return lastErr
}

func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if cap <= 0 {
		cap = 5 * time.Second
	}
	d := base << uint(attempt-1)
	if d <= 0 || d > cap {
		d = cap
	}
	// +/-10% jitter to avoid thundering herd on correlated retries.
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	d += jitter
	if d < 0 {
		d = base
	}
	return d
}
