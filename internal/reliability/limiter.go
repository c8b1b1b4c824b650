package reliability

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled with one token every interval.
type RateLimiter struct {
	mu     sync.Mutex
	rate   time.Duration
	burst  int
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	onWait func(time.Duration)

	tokens int
	last   time.Time
}

// NewRateLimiter constructs a limiter. A non-positive rate or burst
// disables limiting.
func NewRateLimiter(rate time.Duration, burst int) *RateLimiter {
	l := &RateLimiter{
		rate:  rate,
		burst: burst,
		now:   time.Now,
		sleep: sleepWithContext,
	}
	l.tokens = burst
	l.last = l.now()
	return l
}

// OnWait registers a hook observing each time Wait has to block.
func (l *RateLimiter) OnWait(fn func(time.Duration)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.onWait = fn
	l.mu.Unlock()
}

func (l *RateLimiter) disabled() bool {
	return l == nil || l.rate <= 0 || l.burst <= 0
}

// Allow takes a token if one is available without blocking.
func (l *RateLimiter) Allow() bool {
	if l.disabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.now())
	if l.tokens > 0 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context ends.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if l.disabled() {
		return ctx.Err()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.mu.Lock()
		now := l.now()
		l.refill(now)
		if l.tokens > 0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := l.rate - now.Sub(l.last)
		onWait := l.onWait
		l.mu.Unlock()
		if wait <= 0 {
			continue
		}
		if onWait != nil {
			onWait(wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(l.last)
	if elapsed < l.rate {
		return
	}
	add := int(elapsed / l.rate)
	l.tokens = min(l.tokens+add, l.burst)
	l.last = l.last.Add(time.Duration(add) * l.rate)
}
