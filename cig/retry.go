package cig

import (
	"context"
	"time"
)

// RetryBackoff is the pause before the first retry; it doubles each attempt.
var RetryBackoff = 10 * time.Millisecond

// Retry runs fn until it succeeds, fails with a non-retryable error, or has
// been retried retries times. A conflicted assignment is rolled back in full,
// so running it again from scratch is safe.
func Retry(ctx context.Context, retries int, fn func() error) error {
	backoff := RetryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !IsRetryable(err) || attempt >= retries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
