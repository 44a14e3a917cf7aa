package proxy

import (
	"testing"
	"time"
)

func TestPoolRotation(t *testing.T) {
	pool := NewPool([]string{"http://p1:8080", "http://p2:8080", "http://p3:8080", "not a proxy"})
	if pool.Len() != 3 {
		t.Fatalf("expected invalid entry to be dropped, got %d proxies", pool.Len())
	}

	for _, want := range []string{"http://p1:8080", "http://p2:8080", "http://p3:8080", "http://p1:8080"} {
		if p := pool.Next(); p != want {
			t.Errorf("Expected %s, got %s", want, p)
		}
	}

	pool.MarkFailed("http://p2:8080")
	if p := pool.Next(); p != "http://p3:8080" {
		t.Errorf("Expected p3 (skipping p2), got %s", p)
	}
	if p := pool.Next(); p != "http://p1:8080" {
		t.Errorf("Expected p1, got %s", p)
	}

	pool.MarkHealthy("http://p2:8080")
	if p := pool.Next(); p != "http://p2:8080" {
		t.Errorf("Expected p2 after recovery, got %s", p)
	}
}

func TestPoolCooldownExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]string{"http://p1:8080", "http://p2:8080"})
	pool.now = func() time.Time { return now }

	pool.MarkFailed("http://p1:8080")
	pool.MarkFailed("http://p2:8080")
	now = now.Add(time.Minute)

	// Everything is cooling down: fall back to the oldest failure.
	if p := pool.Next(); p != "http://p1:8080" {
		t.Errorf("Expected oldest failure p1, got %s", p)
	}

	now = now.Add(DefaultCooldown)
	if p := pool.Next(); p != "http://p1:8080" {
		t.Errorf("Expected p1 after cooldown, got %s", p)
	}
	if p := pool.Next(); p != "http://p2:8080" {
		t.Errorf("Expected p2 after cooldown, got %s", p)
	}
	if len(pool.failed) != 0 {
		t.Errorf("expected failures to be cleared, got %v", pool.failed)
	}
}

func TestNilPool(t *testing.T) {
	var pool *Pool
	if pool.Next() != "" || pool.Len() != 0 {
		t.Fatal("nil pool should be empty")
	}
	pool.MarkFailed("x")
}
