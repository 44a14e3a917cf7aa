package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiterPerHostBuckets(t *testing.T) {
	l := NewHostLimiter(1, 1)
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "https://planning.example.gov.uk/search"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A different host has its own bucket and must not wait.
	if err := l.Wait(ctx, "https://other.example.gov.uk/search"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("independent hosts blocked each other: %v", elapsed)
	}
}

func TestHostLimiterCancelledContext(t *testing.T) {
	l := NewHostLimiter(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, "http://slow.example.com/"); err != nil {
		t.Fatalf("first token should be free: %v", err)
	}
	cancel()
	if err := l.Wait(ctx, "http://slow.example.com/"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestHostLimiterSetLimit(t *testing.T) {
	l := NewHostLimiter(5, 1)
	l.SetLimit("Planning.Example.com", 0.5, 1)

	if got := l.Limit("planning.example.com"); got != 0.5 {
		t.Errorf("expected override 0.5, got %v", got)
	}
	if got := l.Limit("elsewhere.example.com"); got != 5 {
		t.Errorf("expected default 5, got %v", got)
	}
}

func TestHostLimiterIgnoresBadURL(t *testing.T) {
	l := NewHostLimiter(1, 1)
	if err := l.Wait(context.Background(), "://bad"); err != nil {
		t.Fatalf("expected bad URL to pass through, got %v", err)
	}
}
