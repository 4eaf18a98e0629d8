package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayBounds(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	for n := range b.MaxAttempts {
		lower := min(b.Base<<n, b.Cap)
		upper := min(b.Base<<n+time.Second, b.Cap)
		for range 50 {
			d := b.Delay(n)
			assert.GreaterOrEqual(t, d, lower, "attempt %d", n)
			assert.LessOrEqual(t, d, upper, "attempt %d", n)
		}
	}
}

func TestBackoff_Cap(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5, Jitter: func() time.Duration { return time.Second }}
	assert.Equal(t, 30*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(200))
	assert.Equal(t, 17*time.Second, b.Delay(4))
}

func TestBackoff_NonDecreasingWithExtremeJitter(t *testing.T) {
	t.Parallel()

	hi := Backoff{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5, Jitter: func() time.Duration { return time.Second }}
	lo := hi
	lo.Jitter = func() time.Duration { return 0 }

	for n := 1; n < hi.MaxAttempts; n++ {
		assert.GreaterOrEqual(t, lo.Delay(n), hi.Delay(n-1), "attempt %d", n)
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	assert.False(t, b.Exhausted(0))
	assert.False(t, b.Exhausted(4))
	assert.True(t, b.Exhausted(5))
}
