// Package backoff computes redelivery delays for retried jobs. The
// queue engine owns retry timing; this package only decides how long a
// requeued message should wait before the next attempt.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy is the subset of a job's execution config that drives the
// delay computation.
type Policy struct {
	Delay       time.Duration // base delay
	Exponential bool          // double per attempt with jitter, else fixed
	Max         time.Duration // cap for the exponential schedule
}

// Delay returns how long to wait before retry attempt n (0-indexed:
// n=0 is the first retry after the initial failure). Fixed policies
// always return Delay. Exponential policies pick a random point in
// [Delay, min(Delay * 2^n, Max)], which jitters concurrent retries
// apart while keeping every delay within the configured bounds.
func Delay(p Policy, attempt int) time.Duration {
	if !p.Exponential {
		return p.Delay
	}
	if attempt < 0 {
		attempt = 0
	}

	ceiling := float64(p.Delay) * math.Pow(2, float64(attempt))
	if p.Max > 0 && ceiling > float64(p.Max) {
		ceiling = float64(p.Max)
	}
	floor := float64(p.Delay)
	if ceiling < floor {
		ceiling = floor
	}

	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}
