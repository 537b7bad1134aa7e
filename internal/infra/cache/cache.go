// Package cache holds short-lived per-owner lookups, such as the resolved
// savings category id, in process memory.
package cache

import (
	"sync"
	"time"
)

// minSweepInterval keeps very short TTLs from spinning the sweeper.
const minSweepInterval = time.Second

type item[T any] struct {
	value   T
	expires time.Time
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now   func() time.Time
	sweep time.Duration
}

// WithClock replaces time.Now. Used by tests to move time forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSweepInterval sets how often expired entries are purged. Zero or a
// negative value disables the background sweeper; expired entries are
// still never returned and are dropped when read.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweep = d }
}

// TTL is a concurrency-safe map whose entries expire a fixed time after
// they were written.
type TTL[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]item[T]

	done     chan struct{}
	stopOnce sync.Once
}

// New returns a cache whose entries live for ttl. Unless disabled with
// WithSweepInterval, a sweeper goroutine runs until Stop is called.
func New[T any](ttl time.Duration, opts ...Option) *TTL[T] {
	o := options{now: time.Now, sweep: max(ttl, minSweepInterval)}
	for _, opt := range opts {
		opt(&o)
	}

	c := &TTL[T]{
		ttl:   ttl,
		now:   o.now,
		items: make(map[string]item[T]),
		done:  make(chan struct{}),
	}
	if o.sweep > 0 {
		go c.sweepEvery(o.sweep)
	}
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if ok && c.now().Before(it.expires) {
		return it.value, true
	}
	if ok {
		delete(c.items, key)
	}
	var zero T
	return zero, false
}

// Set stores value under key, replacing any previous entry and restarting
// its lifetime.
func (c *TTL[T]) Set(key string, value T) {
	c.mu.Lock()
	c.items[key] = item[T]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of held entries, including expired ones the
// sweeper has not purged yet.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stop ends the sweeper. It is safe to call more than once.
func (c *TTL[T]) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Purge removes every expired entry and returns how many were dropped.
func (c *TTL[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, it := range c.items {
		if !now.Before(it.expires) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *TTL[T]) sweepEvery(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.Purge()
		}
	}
}
