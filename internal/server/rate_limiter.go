// Package server implements the per-connection fixed-window rate limiter
// that bounds how many events a single client may push through its session.
package server

import "time"

// rateLimiter counts events inside a fixed window. Bursts up to the full
// capacity are possible at every window boundary; that is a deliberate
// simplification over a sliding or leaky-bucket scheme, not a bug.
//
// The limiter is owned exclusively by its connection's read loop, so it
// needs no locking.
type rateLimiter struct {
	width       time.Duration
	capacity    int
	windowStart time.Time
	count       int
}

func newRateLimiter(capacity int, width time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if width <= 0 {
		width = time.Second
	}
	return &rateLimiter{width: width, capacity: capacity}
}

// Admit records one event at the given instant and reports whether it fits
// in the current window. The first event of a fresh window always resets the
// counter before being counted.
func (rl *rateLimiter) Admit(now time.Time) bool {
	if now.Sub(rl.windowStart) >= rl.width {
		rl.windowStart = now
		rl.count = 0
	}
	rl.count++
	return rl.count <= rl.capacity
}
