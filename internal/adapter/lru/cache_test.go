package lru_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/Strob0t/repo-oracle/internal/adapter/lru"
	"github.com/Strob0t/repo-oracle/internal/port/cache"
	"github.com/Strob0t/repo-oracle/internal/port/cache/cachetest"
)

var (
	_ cache.Cache   = (*lru.Cache)(nil)
	_ cache.Counter = (*lru.Cache)(nil)
)

func TestLRU_Compliance(t *testing.T) {
	cachetest.RunComplianceTests(t, lru.New(16))
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := lru.New(3, lru.WithEvictHook(func(key string) { evicted = append(evicted, key) }))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	_ = c.Set(ctx, "d", []byte("d"), 0)

	if _, found, _ := c.Get(ctx, "a"); found {
		t.Fatal("expected a to be evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, found, _ := c.Get(ctx, k); !found {
			t.Fatalf("expected %s to survive", k)
		}
	}
	if !reflect.DeepEqual(evicted, []string{"a"}) {
		t.Fatalf("expected exactly [a] evicted, got %v", evicted)
	}
}

func TestLRU_GetProtectsFromEviction(t *testing.T) {
	c := lru.New(3)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	// Touch a so b becomes the least recently used.
	if _, found, _ := c.Get(ctx, "a"); !found {
		t.Fatal("expected a hit")
	}
	_ = c.Set(ctx, "d", []byte("d"), 0)

	if _, found, _ := c.Get(ctx, "a"); !found {
		t.Fatal("a was accessed before the insert and must survive")
	}
	if _, found, _ := c.Get(ctx, "b"); found {
		t.Fatal("expected b to be evicted")
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
}

func TestLRU_OverwriteRefreshesRecency(t *testing.T) {
	var evicted []string
	c := lru.New(2, lru.WithEvictHook(func(key string) { evicted = append(evicted, key) }))
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("1"), 0)
	_ = c.Set(ctx, "a", []byte("2"), 0)
	_ = c.Set(ctx, "c", []byte("1"), 0)

	if !reflect.DeepEqual(evicted, []string{"b"}) {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	data, found, _ := c.Get(ctx, "a")
	if !found || string(data) != "2" {
		t.Fatalf("a = %q (found=%v), want 2", data, found)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestLRU_DeleteDoesNotCountAsEviction(t *testing.T) {
	var evicted []string
	c := lru.New(2, lru.WithEvictHook(func(key string) { evicted = append(evicted, key) }))
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("explicit delete reported as eviction: %v", evicted)
	}
	if c.Len() != 0 {
		t.Fatalf("expected 0 entries, got %d", c.Len())
	}
}

func TestLRU_ExpiredEntryDoesNotRefreshRecency(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := lru.New(2)
	lru.SetClock(c, func() time.Time { return now })
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("1"), time.Minute)
	_ = c.Set(ctx, "long", []byte("1"), time.Hour)
	now = now.Add(2 * time.Minute)

	if _, found, _ := c.Get(ctx, "short"); found {
		t.Fatal("expected miss after expiry")
	}
	_ = c.Set(ctx, "new", []byte("1"), 0)
	if _, found, _ := c.Get(ctx, "long"); !found {
		t.Fatal("expired entry freed its slot; long must survive")
	}
}

func TestLRU_ZeroCapacityAlwaysMisses(t *testing.T) {
	c := lru.New(0)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("zero-capacity cache must always miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected 0 entries, got %d", c.Len())
	}
}

func TestLRU_ExpiredHitIsMissAndEvicted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var evicted []string
	c := lru.New(4, lru.WithEvictHook(func(key string) { evicted = append(evicted, key) }))
	lru.SetClock(c, func() time.Time { return now })
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, found, _ := c.Get(ctx, "k"); !found {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted, len=%d", c.Len())
	}
	if !reflect.DeepEqual(evicted, []string{"k"}) {
		t.Fatalf("expected [k] evicted, got %v", evicted)
	}
}
