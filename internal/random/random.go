package random

import (
	"math/rand"
	"time"
)

// Timeout returns a random duration in [min, max). If max is not greater
// than min, min is returned.
func Timeout(min time.Duration, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
