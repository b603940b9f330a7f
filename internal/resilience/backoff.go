package resilience

import (
	"math/rand"
	"time"
)

// minDelay is the floor for any computed backoff delay. A zero or
// near-zero base must never produce a busy-retry loop.
const minDelay = 100 * time.Millisecond

// BackoffPolicy computes exponential retry delays with an optional ±25%
// jitter and a hard cap.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// DefaultBackoff returns the policy used when a config doesn't set one.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:   1 * time.Second,
		Max:    60 * time.Second,
		Jitter: true,
	}
}

// Delay returns the wait before the (attempt+1)-th try. Attempt numbers
// start at 0. The result is min(base * 2^attempt, max), jittered by up
// to ±25%, and never below minDelay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}

	if p.Jitter {
		spread := float64(d) * 0.25
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}

	if d < minDelay {
		d = minDelay
	}
	return d
}
