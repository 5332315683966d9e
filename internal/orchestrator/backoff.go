package orchestrator

import "time"

const (
	defaultRetryBase = 200 * time.Millisecond
	defaultRetryMax  = 5 * time.Second
)

// backoffDelay returns retryBase * 2^attempt capped at retryMax, where
// attempt counts completed failures (the first retry waits one base unit).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	if max <= 0 {
		max = defaultRetryMax
	}
	if attempt < 0 {
		return base
	}
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > max {
		return max
	}
	return d
}
