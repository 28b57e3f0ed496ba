package recovery

import (
	"math"
	"math/rand"
	"time"
)

// delayForAttempt returns the exponential backoff delay for a 0-indexed
// attempt, capped at max and jittered by ±25% so that multiple recovering
// sidecars don't retry in lockstep.
func delayForAttempt(base, max time.Duration, attempt int) time.Duration {
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > max {
		delay = max
	}
	//nolint:gosec // jitter does not need a cryptographic RNG
	jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}
