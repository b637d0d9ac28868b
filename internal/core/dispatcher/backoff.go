package dispatcher

import (
	"math/rand/v2"
	"time"
)

const maxBackoff = 30 * time.Second

// backoff doubles base for each retry and adds up to ±25% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half)) - d/4
	}
	return d
}
