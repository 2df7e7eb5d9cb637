package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(refill time.Duration, capacity int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	l := New(refill, capacity)
	l.now = clock.now
	return l, clock
}

func TestAllowConsumesAndRefills(t *testing.T) {
	l, clock := newTestLimiter(10*time.Second, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("attempt %d rejected", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("fourth attempt should be rejected")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other keys have their own bucket")
	}

	clock.advance(15 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("one token should have been refilled")
	}
	if l.Allow("10.0.0.1") {
		t.Error("partial refill interval must not add a token")
	}

	clock.advance(5 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("carried-over partial interval should complete a token")
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	l, clock := newTestLimiter(time.Second, 2)
	l.Allow("k")
	clock.advance(time.Hour)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("k") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2", allowed)
	}
}

func TestResetAndSweep(t *testing.T) {
	l, clock := newTestLimiter(time.Minute, 1)
	l.Allow("a")
	if l.Allow("a") {
		t.Fatal("bucket should be empty")
	}
	l.Reset("a")
	if !l.Allow("a") {
		t.Error("reset should refill the bucket")
	}

	l.Allow("b")
	clock.advance(staleAfter + time.Minute)
	l.Allow("c")
	l.sweep()
	if got := l.size(); got != 1 {
		t.Errorf("buckets after sweep = %d, want 1", got)
	}
}
