// Package retry provides a bounded retry policy for calls against the payment
// provider, which is eventually consistent by contract. Backoff grows linearly
// with the attempt number.
package retry

import (
	"context"
	"time"
)

type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultProvider is the capture-status polling policy: 3 attempts with
// linear backoff before the operation fails.
var DefaultProvider = Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}

// Do invokes fn until it returns retry=false, attempts run out, or the
// context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() (retry bool, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		again, err := fn()
		if !again {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}
	return lastErr
}
