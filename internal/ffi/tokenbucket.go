package ffi

import (
	"sync"
	"time"
)

// tokenBucket is a hand-rolled token-bucket rate limiter: no ecosystem
// package in the pack models this (the closest example, an agent loop's
// own rate limiter, is itself hand-rolled rather than built on a
// dependency), so this mirrors that same shape rather than introducing
// golang.org/x/time/rate with no precedent in the corpus.
type tokenBucket struct {
	mu sync.Mutex

	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(ratePerSecond float64, burst float64) *tokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &tokenBucket{capacity: burst, refillRate: ratePerSecond, tokens: burst, lastRefill: time.Now()}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
