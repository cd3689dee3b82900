package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterPerKeyBurst(t *testing.T) {
	l := New(1, 2)
	at := time.Date(2025, 8, 4, 9, 30, 0, 0, time.UTC)
	if !l.AllowAt("NIFTY", at) || !l.AllowAt("NIFTY", at) {
		t.Fatalf("burst of 2 must be allowed")
	}
	if l.AllowAt("NIFTY", at) {
		t.Fatalf("third event in the same instant must be limited")
	}
	if !l.AllowAt("NIFTY28AUG25FUT", at) {
		t.Fatalf("keys must not share buckets")
	}
	if !l.AllowAt("NIFTY", at.Add(time.Second)) {
		t.Fatalf("bucket must refill after one second")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, 0)
	at := time.Now()
	for i := 0; i < 1000; i++ {
		if !l.AllowAt("X", at) {
			t.Fatalf("disabled limiter rejected event %d", i)
		}
	}
}
