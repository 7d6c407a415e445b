package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket for the management API. The
// resolution endpoint has its own shared window in package ratelimit.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*client
	r        rate.Limit
	b        int
	keyFunc  func(*http.Request) string
	now      func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter keys buckets with keyFunc, or RemoteAddr when nil.
func NewRateLimiter(requestsPerSecond float64, burst int, keyFunc func(*http.Request) string) *RateLimiter {
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &RateLimiter{
		limiters: make(map[string]*client),
		r:        rate.Limit(requestsPerSecond),
		b:        burst,
		keyFunc:  keyFunc,
		now:      time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.limiters[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.r, rl.b)}
		rl.limiters[key] = c
	}
	c.lastSeen = rl.now()
	return c.limiter
}

// Sweep drops buckets idle for longer than maxIdle and returns how many
// were removed.
func (rl *RateLimiter) Sweep(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, c := range rl.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(rl.keyFunc(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
