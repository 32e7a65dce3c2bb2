// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the topic buses from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows burst frames at once, refilled evenly so a full
// burst is available again after interval.
func newRateLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
