package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AllowsUpToThreshold(t *testing.T) {
	l := New(3, time.Minute, 100)
	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("query %d should have been allowed", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("4th query within the window should have been dropped")
	}
}

func TestLimiter_CooldownBlocksUntilExpiry(t *testing.T) {
	l := New(1, 50*time.Millisecond, 100)
	if !l.Allow("10.0.0.2") {
		t.Fatal("first query should be allowed")
	}
	if l.Allow("10.0.0.2") {
		t.Fatal("second query should trip the cooldown")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.Allow("10.0.0.2") {
		t.Error("query after cooldown expiry should be allowed")
	}
}

func TestLimiter_TracksSourcesIndependently(t *testing.T) {
	l := New(1, time.Minute, 100)
	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.2") {
		t.Error("distinct sources should each get their own budget")
	}
}

func TestLimiter_EvictsOldestWhenOverCapacity(t *testing.T) {
	l := New(10, time.Minute, 5)
	for i := 0; i < 20; i++ {
		l.Allow(string(rune('a' + i)))
	}
	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	if n > 5+5/10+1 {
		t.Errorf("tracked sources = %d, expected eviction to keep it near maxTracked", n)
	}
}
