package worker

import (
	"math/rand"
	"time"
)

// RetryPolicy governs how long a failed webhook event waits before the
// drain loop picks it up again. Delays grow geometrically per attempt,
// capped at MaxDelay, with an optional random spread so a batch of
// events failed by the same outage does not come back in lockstep.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// JitterFrac adds up to this fraction of the computed delay,
	// e.g. 0.2 spreads a 10s delay across [10s, 12s). Zero disables it.
	JitterFrac float64
}

// NextDelay returns the wait before retrying the given 1-based attempt.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if r.MaxDelay > 0 && d >= r.MaxDelay {
			d = r.MaxDelay
			break
		}
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d < time.Second {
		d = time.Second
	}
	if r.JitterFrac > 0 {
		d += time.Duration(rand.Float64() * r.JitterFrac * float64(d))
	}
	return d
}
