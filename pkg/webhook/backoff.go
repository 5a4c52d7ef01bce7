package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based).
type Backoff func(attempt int) time.Duration

// Exponential doubles the delay from initial up to max, with up to 10% jitter.
func Exponential(initial, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		d := float64(initial) * math.Pow(2, float64(attempt-1))
		d *= 1 + (rand.Float64()*2-1)*0.1
		if d > float64(max) {
			d = float64(max)
		}
		return time.Duration(d)
	}
}

// Fixed waits the same interval between every attempt.
func Fixed(d time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		return d
	}
}
