package retry

import (
	"math/rand"
	"time"
)

// Delay computes the backoff delay before retrying, for a 0-based attempt
// number: base * 2^attempt, capped at max, then perturbed by multiplicative
// jitter in [-jitterFactor, +jitterFactor] of the capped value, floored at
// zero. With jitterFactor == 0 the result is exactly min(base*2^attempt, max).
//
// rnd may be nil; a shared source is used then. Pure apart from the draw.
func Delay(attempt int, base, max time.Duration, jitterFactor float64, rnd *rand.Rand) time.Duration {
	if attempt < 0 || base <= 0 {
		return 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			break
		}
		if delay < base {
			// Overflow; clamp to max.
			delay = max
			break
		}
	}
	if max > 0 && delay > max {
		delay = max
	}

	if jitterFactor > 0 {
		delay += time.Duration(float64(delay) * jitterFactor * symmetricUnit(rnd))
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// symmetricUnit draws from [-1, 1).
func symmetricUnit(rnd *rand.Rand) float64 {
	if rnd != nil {
		return rnd.Float64()*2 - 1
	}
	return rand.Float64()*2 - 1
}
