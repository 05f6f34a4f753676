// internal/ratelimit/limiter.go
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter provides per-client rate limiting for the HTTP API. It
// uses the token bucket algorithm: each client gets max tokens refilled
// evenly over span, so a burst of max requests is allowed and sustained
// traffic levels out to max-per-span.
type ClientLimiter struct {
	limiters map[string]*clientEntry
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter allowing max requests per span for
// each distinct client key.
func NewClientLimiter(max int, span time.Duration) *ClientLimiter {
	if max <= 0 {
		max = 20
	}
	if span <= 0 {
		span = 15 * time.Minute
	}

	return &ClientLimiter{
		limiters: make(map[string]*clientEntry),
		perSec:   rate.Limit(float64(max) / span.Seconds()),
		burst:    max,
	}
}

// Allow reports whether a request from the given client may proceed.
func (cl *ClientLimiter) Allow(client string) bool {
	return cl.getLimiter(client).Allow()
}

// getLimiter returns or creates a rate limiter for the given client
func (cl *ClientLimiter) getLimiter(client string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if entry, exists := cl.limiters[client]; exists {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	entry := &clientEntry{
		limiter:  rate.NewLimiter(cl.perSec, cl.burst),
		lastSeen: time.Now(),
	}
	cl.limiters[client] = entry

	return entry.limiter
}

// Sweep drops limiters not seen within maxIdle, bounding memory across
// many one-off clients. Returns the number removed.
func (cl *ClientLimiter) Sweep(maxIdle time.Duration) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for client, entry := range cl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(cl.limiters, client)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps idle clients on the given interval until done is
// closed.
func (cl *ClientLimiter) StartJanitor(done <-chan struct{}, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cl.Sweep(maxIdle)
			}
		}
	}()
}
