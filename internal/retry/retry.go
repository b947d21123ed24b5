// Package retry runs an operation under a bounded retry policy.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// Policy bounds how often and how far apart an operation is attempted.
type Policy struct {
	MaxAttempts int
	// Backoff returns the wait after the given 1-based failed attempt.
	Backoff func(attempt int) time.Duration
}

// Fixed waits the same delay between every attempt.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff:     func(int) time.Duration { return delay },
	}
}

// Exponential doubles the delay after every attempt, capped at maxDelay,
// and adds up to half the delay of random jitter.
func Exponential(attempts int, base, maxDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff: func(attempt int) time.Duration {
			delay := float64(base) * math.Pow(2, float64(attempt-1))
			if delay > float64(maxDelay) {
				delay = float64(maxDelay)
			}
			return time.Duration(delay/2) + randomJitter(time.Duration(delay/2))
		},
	}
}

// Do calls op until it succeeds, the attempts are exhausted, or ctx ends.
// The last error from op is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ctxErr, err)
		}
		if err = op(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
