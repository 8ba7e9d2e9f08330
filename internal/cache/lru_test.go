package cache

import (
	"testing"
	"time"
)

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](size, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	*now = now.Add(30 * time.Second)
	c.Set("b", 3)

	*now = now.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Errorf("refreshed b = %d, %v", v, ok)
	}

	*now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after cleanup", c.Size())
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c, _ := newTestCache(0, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}
}
