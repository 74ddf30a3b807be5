// Package lru implements the cache port as a fixed-capacity,
// least-recently-used in-process store on hashicorp/golang-lru.
package lru

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// entry is one cached response.
type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Cache is a fixed-capacity LRU cache. A Get hit refreshes recency; a Set at
// capacity evicts the least recently used entry first. Expiry is checked
// before recency is refreshed, so an expired hit is a miss and is evicted.
//
// A capacity of zero disables the cache: every Get misses and Set is a no-op.
type Cache struct {
	mu      sync.Mutex
	store   *simplelru.LRU[string, entry] // nil when disabled
	now     func() time.Time             // for testing
	onEvict func(key string)

	// deleting suppresses onEvict while Delete removes an entry.
	deleting bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithEvictHook registers fn to be called, under the cache lock, with the
// key of every entry removed for capacity or expiry.
func WithEvictHook(fn func(key string)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// New creates an LRU cache holding at most capacity entries.
// Negative capacities are treated as zero.
func New(capacity int, opts ...Option) *Cache {
	c := &Cache{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if capacity > 0 {
		// NewLRU only fails for a non-positive size.
		c.store, _ = simplelru.NewLRU(capacity, c.evicted)
	}
	return c
}

func (c *Cache) evicted(key string, _ entry) {
	if !c.deleting && c.onEvict != nil {
		c.onEvict(key)
	}
}

// Get returns the value for key and refreshes its recency.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if c.store == nil {
		return nil, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.store.Peek(key)
	if !found {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.store.Remove(key)
		return nil, false, nil
	}
	c.store.Get(key)
	return e.value, true, nil
}

// Set stores value under key. A ttl of zero stores the entry without expiry.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.store.Add(key, e)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleting = true
	c.store.Remove(key)
	c.deleting = false
	return nil
}

// Len returns the number of stored entries, including expired entries that
// have not been looked up since they expired.
func (c *Cache) Len() int {
	if c.store == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}
