package channel

import (
	"math/rand/v2"
	"time"
)

const maxJitter = time.Second

// Backoff computes retry delays: min(Base·2^n + jitter, Cap) with jitter
// uniform in [0, 1s]. Attempts run from 0 to MaxAttempts-1.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int

	// Jitter overrides the random offset. Nil means uniform [0, 1s].
	Jitter func() time.Duration
}

// DefaultBackoff is 1s doubling to 30s over five attempts.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before attempt n.
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := b.Cap
	// Stop doubling once past the cap so large n cannot overflow.
	if n < 62 && b.Base <= b.Cap>>n {
		d = b.Base << n
	}
	d += b.jitter()
	if d > b.Cap {
		d = b.Cap
	}
	return d
}

// Exhausted reports whether attempt n is beyond the retry budget.
func (b Backoff) Exhausted(n int) bool {
	return n >= b.MaxAttempts
}

func (b Backoff) jitter() time.Duration {
	if b.Jitter != nil {
		return b.Jitter()
	}
	return time.Duration(rand.Int64N(int64(maxJitter) + 1))
}
