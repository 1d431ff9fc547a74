package worker

import (
	"math"
	"time"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy retries three times after 5s, 10s and 20s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: 5 * time.Second, BackoffFactor: 2}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// CanRetry reports whether an item that already failed retryCount times
// may be scheduled again.
func (r RetryPolicy) CanRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}
