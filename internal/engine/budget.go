package engine

import (
	"sync/atomic"
	"time"
)

// Breaker is the process-wide budget circuit breaker for fallback classifier
// calls. Concurrent evaluations read and update it without locks; all state
// lives in atomics. Once tripped it stays open for the cooldown window, then
// closes with fresh counters.
type Breaker struct {
	maxCalls   int64
	maxCents   int64
	cooldown   time.Duration
	calls      atomic.Int64
	spentCents atomic.Int64
	openUntil  atomic.Int64 // unix nanos; zero when closed
	now        func() time.Time
}

// NewBreaker creates a breaker that trips when either the call count or the
// spend in cents reaches its limit. A zero limit disables that check.
func NewBreaker(maxCalls, maxCents int64, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxCalls: maxCalls,
		maxCents: maxCents,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Open reports whether the breaker is currently open. An expired cooldown
// closes the breaker and resets the counters as a side effect.
func (b *Breaker) Open() bool {
	until := b.openUntil.Load()
	if until == 0 {
		return false
	}
	if b.now().UnixNano() < until {
		return true
	}
	// Cooldown elapsed: close once, resetting the window counters. Losing
	// the CAS means another evaluation already closed it.
	if b.openUntil.CompareAndSwap(until, 0) {
		b.calls.Store(0)
		b.spentCents.Store(0)
	}
	return false
}

// Allow reports whether a fallback classifier call may proceed. It counts
// the call immediately so concurrent evaluations cannot all slip under the
// limit together.
func (b *Breaker) Allow() bool {
	if b.Open() {
		return false
	}
	if b.maxCalls > 0 && b.calls.Add(1) > b.maxCalls {
		b.trip()
		return false
	}
	return true
}

// RecordSpend adds a completed call's cost and trips the breaker if the
// spend limit is reached.
func (b *Breaker) RecordSpend(cents int64) {
	if b.maxCents > 0 && b.spentCents.Add(cents) >= b.maxCents {
		b.trip()
	}
}

// RemainingCents returns the spend headroom, or -1 when unlimited.
func (b *Breaker) RemainingCents() int64 {
	if b.maxCents == 0 {
		return -1
	}
	remaining := b.maxCents - b.spentCents.Load()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *Breaker) trip() {
	b.openUntil.Store(b.now().Add(b.cooldown).UnixNano())
}
