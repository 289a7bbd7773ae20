package api

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterTokenBucket(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	l := newRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("198.51.100.7"); !ok {
			t.Fatalf("attempt %d: expected to be allowed", i+1)
		}
	}
	ok, wait := l.allow("198.51.100.7")
	if ok {
		t.Fatal("expected third attempt to be limited")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("expected to wait for one token (30s), got %s", wait)
	}
	if ok, _ := l.allow("203.0.113.9"); !ok {
		t.Fatal("other clients should have their own bucket")
	}

	// Refused attempts do not consume tokens, so one refill buys one attempt.
	now = now.Add(31 * time.Second)
	if ok, _ := l.allow("198.51.100.7"); !ok {
		t.Fatal("expected a token after the refill interval")
	}
	if ok, _ := l.allow("198.51.100.7"); ok {
		t.Fatal("expected the refilled token to be spent")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := l.allow("198.51.100.7"); !ok {
		t.Fatal("expected a full bucket after a quiet window")
	}
	if _, ok := l.clients["203.0.113.9"]; ok {
		t.Fatal("expected idle buckets to be swept")
	}
}

func TestNewRateLimiterDefaultsBurst(t *testing.T) {
	l := newRateLimiter(0, time.Minute)
	if l.burst != defaultAuthRateLimit {
		t.Fatalf("expected default burst %d, got %d", defaultAuthRateLimit, l.burst)
	}
	if got := l.limit; got != rate.Every(2*time.Second) {
		t.Fatalf("expected refill of %d per minute, got %v/s", defaultAuthRateLimit, got)
	}
}
