package ws

import "time"

// Backoff computes capped exponential reconnect delays with a bounded budget.
type Backoff struct {
	// BaseWait is the delay before the first retry.
	BaseWait time.Duration
	// MaxWait caps every delay.
	MaxWait time.Duration
	// MaxAttempts is the number of retries allowed before giving up.
	MaxAttempts int
}

// DefaultBackoff returns 1s doubling up to 30s with five retries.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseWait:    1 * time.Second,
		MaxWait:     30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns min(MaxWait, BaseWait*2^attempt) for a zero-indexed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// past 2^30 the product overflows before the cap applies
	if attempt > 30 {
		return b.MaxWait
	}
	wait := b.BaseWait * time.Duration(1<<uint(attempt))
	if wait <= 0 || wait > b.MaxWait {
		return b.MaxWait
	}
	return wait
}

// Exhausted reports whether attempt retries have used up the budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
