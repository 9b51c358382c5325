package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketStartsFull(t *testing.T) {
	b := New(10, 1)
	assert.Equal(t, uint64(10), b.Available())
}

func TestBucketConsumesAndRefills(t *testing.T) {
	b := New(10, 2)

	assert.True(t, b.TryTake(7, 0))
	assert.Equal(t, uint64(3), b.Available())

	// After 2 seconds at 2 tokens/sec => +4 tokens.
	assert.True(t, b.TryTake(0, 2*time.Second))
	assert.Equal(t, uint64(7), b.Available())

	// Can't exceed capacity.
	b.Refill(100 * time.Second)
	assert.Equal(t, uint64(10), b.Available())
}

func TestBucketDeniesWhenEmpty(t *testing.T) {
	b := New(1, 0)
	assert.True(t, b.TryTake(1, 0))
	assert.False(t, b.TryTake(1, 0))
	assert.False(t, b.TryTake(1, 100*time.Second))
}

func TestBucketHandlesSubsecondRefill(t *testing.T) {
	b := New(10, 1)
	b.Clear()
	assert.Equal(t, uint64(0), b.Available())

	// 500ms at 1 token/sec => 0.5 tokens, still 0 whole tokens.
	b.Refill(500 * time.Millisecond)
	assert.Equal(t, uint64(0), b.Available())

	// Another 500ms => total 1 token.
	b.Refill(1000 * time.Millisecond)
	assert.Equal(t, uint64(1), b.Available())
}

func TestBucketRefillIsANoOpGoingBackwards(t *testing.T) {
	b := New(5, 1)
	b.Refill(10 * time.Second)
	before := b.Available()
	b.Refill(5 * time.Second)
	assert.Equal(t, before, b.Available())
}
