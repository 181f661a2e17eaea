package queue

import "time"

const maxBackoff = time.Hour

// Backoff returns the delay before retry number n (1-based): base, 2*base, 4*base, ...
func Backoff(base time.Duration, n int) time.Duration {
	if base <= 0 {
		base = DefaultBackoff
	}
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
