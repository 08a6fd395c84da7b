package client

import (
	"context"
	"errors"
	"math"
	"time"
)

// Retry repeats a request on transient failures with exponential backoff.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     float64

	// OnRetry, when set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, BaseDelay: time.Second, Backoff: 1.5}
}

// Delay is the wait after the given number of failed attempts.
func (r Retry) Delay(failed int) time.Duration {
	backoff := r.Backoff
	if backoff < 1 {
		backoff = 1
	}
	return time.Duration(float64(r.BaseDelay) * math.Pow(backoff, float64(failed)))
}

// ShouldRetry reports whether another attempt is allowed after err.
func (r Retry) ShouldRetry(err error, attempt int) bool {
	if attempt >= r.MaxAttempts {
		return false
	}
	var ce *Error
	return errors.As(err, &ce) && ce.Retriable()
}

func (r Retry) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !r.ShouldRetry(err, attempt) {
			return err
		}
		delay := r.Delay(attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, err)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
