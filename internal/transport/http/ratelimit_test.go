package http

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := newRateLimiter(2)
	r.now = func() time.Time { return now }

	if !r.allow() || !r.allow() {
		t.Fatalf("first two events should pass")
	}
	if r.allow() {
		t.Fatalf("third event in the window should be rejected")
	}

	now = now.Add(time.Minute)
	if !r.allow() {
		t.Fatalf("limiter should reset after the window")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(0)
	for range 1000 {
		if !r.allow() {
			t.Fatalf("disabled limiter rejected an event")
		}
	}
}
