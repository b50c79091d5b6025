package queue

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before the next delivery attempt.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter spreads each delay by up to ±Jitter of itself (0.0 to 1.0).
	Jitter float64

	rand func() float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    2 * time.Second,
		Max:        5 * time.Minute,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// Delay returns the wait after the given number of failed attempts (1-based).
func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(failures-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		rnd := b.rand
		if rnd == nil {
			rnd = rand.Float64
		}
		d += d * b.Jitter * (rnd()*2 - 1)
	}
	return time.Duration(d)
}
