// Package ratelimit implements a fixed-point token-bucket limiter, ported
// from original_source/toppy-core/src/rate.rs. Toppy's own spec does not
// require rate limiting, but the gateway's per-client Open handling guards
// against abusive clients the same way the original did; see
// internal/gateway and DESIGN.md.
package ratelimit

import (
	"sync"
	"time"
)

// fpScale gives one token 1e9 units of fixed-point precision, avoiding
// floating point in refill math.
const fpScale = 1_000_000_000

// Bucket is a token bucket that starts full and refills at a fixed
// tokens-per-second rate. Safe for concurrent use.
type Bucket struct {
	mu sync.Mutex

	capacityFP   uint64
	tokensFP     uint64
	refillPerSec uint64
	lastRefill   time.Duration
}

// New creates a bucket with the given capacity (whole tokens) and refill
// rate (whole tokens per second), starting full.
func New(capacity, refillPerSec uint64) *Bucket {
	capacityFP := capacity * fpScale
	return &Bucket{
		capacityFP:   capacityFP,
		tokensFP:     capacityFP,
		refillPerSec: refillPerSec,
	}
}

// Refill tops up the bucket based on elapsed time since the last refill.
// now should be monotonic (e.g. a reading from time.Since against a fixed
// start), matching the caller discipline in the original.
func (b *Bucket) Refill(now time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
}

func (b *Bucket) refillLocked(now time.Duration) {
	if now <= b.lastRefill {
		return
	}
	if b.refillPerSec == 0 {
		b.lastRefill = now
		return
	}

	elapsedNanos := uint64((now - b.lastRefill).Nanoseconds())
	incrementFP := elapsedNanos * b.refillPerSec

	b.tokensFP += incrementFP
	if b.tokensFP > b.capacityFP {
		b.tokensFP = b.capacityFP
	}
	b.lastRefill = now
}

// Available returns the number of whole tokens currently available.
func (b *Bucket) Available() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokensFP / fpScale
}

// TryTake attempts to take amount tokens at time now, refilling first.
// Returns true if the tokens were available and consumed.
func (b *Bucket) TryTake(amount uint64, now time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)

	neededFP := amount * fpScale
	if b.tokensFP >= neededFP {
		b.tokensFP -= neededFP
		return true
	}
	return false
}

// Clear forces the bucket empty, e.g. after detecting abuse.
func (b *Bucket) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokensFP = 0
}
