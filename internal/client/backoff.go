package client

import (
	"math/rand"
	"time"
)

// Backoff yields retry delays base·2^k plus up to half of that again as
// jitter, capped at Max. Delays never decrease as k grows.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}
}

func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		b.Base = DefaultBackoff().Base
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d >= b.Max {
		return b.Max
	}

	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	d += time.Duration(r() * float64(d/2))
	if d > b.Max {
		d = b.Max
	}
	return d
}
