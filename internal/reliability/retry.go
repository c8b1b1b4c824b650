// Package reliability holds the guards placed around outbound calls:
// a retry policy, a circuit breaker and a token-bucket rate limiter.
package reliability

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrCircuitOpen indicates the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryPolicy retries a function with exponential backoff. The commit path
// never retries; the policy is used for startup dependency checks.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      func(time.Duration) time.Duration
	Sleep       func(context.Context, time.Duration) error
	ShouldRetry func(error) bool
	// OnRetry, when set, observes each failed attempt that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do runs fn until it succeeds, the attempts are spent, or the error is not
// retryable.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = retryable
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = halfJitter
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || !shouldRetry(err) {
			return err
		}

		delay := p.backoff(attempt)
		delay = jitter(delay)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if delay > 0 {
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay > 0 {
		delay <<= attempt - 1
	}
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay < 0) {
		delay = p.MaxDelay
	}
	return delay
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrCircuitOpen)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func halfJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
