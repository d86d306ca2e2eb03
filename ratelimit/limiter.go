// Package ratelimit gates the challenge-mint step of the Challenge/Verify
// Flow with a per-remote-IP token bucket, so an unauthenticated caller
// can't force unbounded invoice creation against the Node Gateway.
package ratelimit

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedIPs bounds the number of distinct limiters kept in memory; the
// least recently used is evicted once the limit is reached.
const maxTrackedIPs = 4096

// Limiter is a per-key token-bucket rate limiter bounded to a fixed number
// of tracked keys.
type Limiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

// New constructs a Limiter allowing `requests` events per second per key,
// with the given burst.
func New(requests float64, burst int) *Limiter {
	cache, err := lru.New[string, *rate.Limiter](maxTrackedIPs)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// maxTrackedIPs never is.
		panic(err)
	}

	return &Limiter{
		limit:    rate.Limit(requests),
		burst:    burst,
		limiters: cache,
	}
}

// Allow reports whether an event for key is permitted right now,
// consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.getOrCreate(key).Allow()
}

func (l *Limiter) getOrCreate(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters.Get(key); ok {
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(key, limiter)

	return limiter
}
