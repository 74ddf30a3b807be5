package lru

import "time"

// SetClock replaces the cache clock in tests.
func SetClock(c *Cache, now func() time.Time) {
	c.now = now
}
