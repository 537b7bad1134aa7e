package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/infra/cache"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5*time.Minute, cache.WithSweepInterval(0))
	defer c.Stop()

	c.Set("savings:owner-1", "cat-1")
	val, ok := c.Get("savings:owner-1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "cat-1" {
		t.Errorf("expected 'cat-1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5*time.Minute, cache.WithSweepInterval(0))
	defer c.Stop()

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_EntryExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := cache.New[string](time.Minute, cache.WithClock(clock.Now), cache.WithSweepInterval(0))
	defer c.Stop()

	c.Set("key1", "value1")
	clock.Advance(59 * time.Second)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("expected entry to be alive before the TTL")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected entry to expire at the TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be dropped on read, %d left", c.Len())
	}
}

func TestCache_SetRestartsLifetime(t *testing.T) {
	clock := newFakeClock()
	c := cache.New[string](time.Minute, cache.WithClock(clock.Now), cache.WithSweepInterval(0))
	defer c.Stop()

	c.Set("k", "v1")
	clock.Advance(45 * time.Second)
	c.Set("k", "v2")
	clock.Advance(45 * time.Second)

	val, ok := c.Get("k")
	if !ok || val != "v2" {
		t.Fatalf("expected refreshed entry v2, got %q (ok=%v)", val, ok)
	}
}

func TestCache_Purge(t *testing.T) {
	clock := newFakeClock()
	c := cache.New[int](time.Minute, cache.WithClock(clock.Now), cache.WithSweepInterval(0))
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Set("c", 3)
	clock.Advance(31 * time.Second)

	if n := c.Purge(); n != 2 {
		t.Errorf("expected 2 purged entries, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}
}

func TestCache_SweeperRemovesExpired(t *testing.T) {
	c := cache.New[int](time.Millisecond, cache.WithSweepInterval(10*time.Millisecond))
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)

	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Fatalf("expected sweeper to empty the cache, %d entries left", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Stop()

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_StopTwice(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Stop()
	c.Stop()
}
