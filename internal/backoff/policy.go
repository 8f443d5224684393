// Package backoff provides the delay policies used when polling run status and
// retrying transient remote failures.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes a capped exponential delay. A Factor of 1 (or 0) yields a
// fixed interval equal to Initial.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps any single delay. Zero means uncapped.
	Max time.Duration
	// Factor multiplies the delay after each attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top of the base delay.
	Jitter float64
}

// Fixed returns a policy that always waits d.
func Fixed(d time.Duration) Policy {
	return Policy{Initial: d, Max: d, Factor: 1}
}

// DefaultRetryPolicy is used for retrying idempotent remote reads.
// Initial: 200ms, Max: 5s, Factor: 2, Jitter: 10%
func DefaultRetryPolicy() Policy {
	return Policy{
		Initial: 200 * time.Millisecond,
		Max:     5 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay returns the wait before attempt+1. Attempt numbers start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with a caller supplied random value in [0.0, 1.0).
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(factor, exp)
	total := base + base*p.Jitter*randomValue
	if p.Max > 0 {
		total = math.Min(float64(p.Max), total)
	}
	return time.Duration(math.Round(total))
}
