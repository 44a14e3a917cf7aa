// Package cache holds short-lived responses so repeated detail lookups within
// a run do not hit an authority twice.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Memory is an in-memory LRU cache bounded by entry count, with per-entry TTL.
type Memory[V any] struct {
	mu         sync.Mutex
	store      map[string]*list.Element
	lru        *list.List
	maxEntries int
	ttl        time.Duration
	hits       uint64
	misses     uint64
	cancel     context.CancelFunc
}

// NewMemory creates a cache holding at most maxEntries values for ttl each.
// A background sweep drops expired entries until Close is called.
func NewMemory[V any](maxEntries int, ttl time.Duration) *Memory[V] {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Memory[V]{
		store:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		cancel:     cancel,
	}
	go c.sweep(ctx)
	return c
}

// Get returns the cached value for key and marks it most recently used.
func (c *Memory[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.store[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if time.Now().After(e.expiresAt) {
		c.misses++
		c.remove(el)
		return zero, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry if full.
func (c *Memory[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)
	if el, ok := c.store[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = expires
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxEntries {
		back := c.lru.Back()
		if back == nil {
			break
		}
		log.Debug().Str("key", back.Value.(*entry[V]).key).Msg("Evicted from cache (LRU)")
		c.remove(back)
	}
	c.store[key] = c.lru.PushFront(&entry[V]{key: key, value: value, expiresAt: expires})
}

// Delete removes key if present.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.store[key]; ok {
		c.remove(el)
	}
}

// Len returns the number of live entries.
func (c *Memory[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns hit/miss counters.
func (c *Memory[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close stops the background sweep.
func (c *Memory[V]) Close() {
	c.cancel()
}

// remove must be called with the lock held.
func (c *Memory[V]) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.store, el.Value.(*entry[V]).key)
}

func (c *Memory[V]) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			var next *list.Element
			for el := c.lru.Front(); el != nil; el = next {
				next = el.Next()
				if now.After(el.Value.(*entry[V]).expiresAt) {
					c.remove(el)
				}
			}
			c.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
