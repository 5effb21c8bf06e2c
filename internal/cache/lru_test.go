package cache

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *clock) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	var evicted []string
	c.OnEvict(func(key string, _ int) { evicted = append(evicted, key) })

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	if c.Size() != 2 {
		t.Fatalf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	var evicted []string
	c.OnEvict(func(key string, _ int) { evicted = append(evicted, key) })

	c.Set("a", 1)
	c.Set("b", 2)
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", 3)
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Fatalf("b = %d, %v; Set should refresh the TTL", v, ok)
	}

	clk.t = clk.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestLRUCacheTouchSlidesExpiry(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	for i := 0; i < 3; i++ {
		clk.t = clk.t.Add(40 * time.Second)
		if v, ok := c.Touch("a"); !ok || v != 1 {
			t.Fatalf("touch %d: a = %d, %v", i, v, ok)
		}
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b was never touched and should have expired")
	}

	clk.t = clk.t.Add(61 * time.Second)
	if _, ok := c.Touch("a"); ok {
		t.Fatal("Touch must not revive an expired entry")
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	called := 0
	c.OnEvict(func(string, int) { called++ })

	c.Set("a", 1)
	c.Delete("a")
	c.Delete("a")
	if called != 1 {
		t.Fatalf("eviction callback called %d times, want 1", called)
	}
}

func TestManagerSweep(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	clk.t = clk.t.Add(2 * time.Minute)

	m := NewManager()
	m.Register("test", c)
	if n := m.Sweep(context.Background()); n != 2 {
		t.Fatalf("Sweep = %d, want 2", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx, time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
