// Package ratelimit provides the deterministic token bucket used to cap
// per-connection websocket message rates.
package ratelimit

import (
	"sync"
	"time"
)

// One token is time.Second nano-tokens. Refill math stays in integers so a
// bucket behaves identically across runs given the same Clock readings.
const nanosPerToken = int64(time.Second)

// TokenBucket caps an operation rate at ratePerSec with bursts up to
// capacity. A rate of R tokens/sec refills exactly R nano-tokens per elapsed
// nanosecond, so there is no float rounding anywhere.
type TokenBucket struct {
	mu sync.Mutex

	clock      Clock
	capacity   int64 // tokens
	ratePerSec int64 // tokens per second

	available  int64 // nano-tokens
	lastRefill time.Time
}

func NewTokenBucket(clock Clock, capacity, ratePerSec int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if ratePerSec < 0 {
		ratePerSec = 0
	}
	return &TokenBucket{
		clock:      clock,
		capacity:   capacity,
		ratePerSec: ratePerSec,
		available:  toNano(capacity),
		lastRefill: clock.Now(),
	}
}

// Allow consumes tokens if the bucket holds enough after refilling for the
// elapsed clock time. Requests for zero or negative amounts always succeed.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	cost := toNano(tokens)
	if cost > b.available {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refill() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill)
	b.lastRefill = now
	if elapsed <= 0 {
		// Clock went backwards or did not move; grant nothing.
		return
	}
	if b.ratePerSec <= 0 || b.capacity <= 0 {
		return
	}

	full := toNano(b.capacity)
	if b.available >= full {
		b.available = full
		return
	}

	// elapsed*rate overflows for long idle stretches; once the elapsed time
	// covers the whole deficit, clamp straight to capacity instead.
	ns := elapsed.Nanoseconds()
	deficit := full - b.available
	if ns > deficit/b.ratePerSec {
		b.available = full
		return
	}
	b.available += ns * b.ratePerSec
	if b.available > full {
		b.available = full
	}
}

func toNano(tokens int64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanosPerToken {
		return maxInt64
	}
	return tokens * nanosPerToken
}
