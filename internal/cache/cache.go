// Package cache provides the bounded, time-expiring store shared by the
// location engine. Entries expire lazily on read; when the store is full the
// oldest inserted entry is evicted. Access order is not tracked.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrInvalidConfig = errors.New("invalid cache configuration")

// Entry is a cached value with its write time and expiry, both in Unix milliseconds.
type Entry[V any] struct {
	Key       string
	Data      V
	Timestamp int64
	ExpiresAt int64
}

func (e *Entry[V]) expired(now time.Time) bool {
	return now.UnixMilli() > e.ExpiresAt
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Size int
	Keys []string
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	entries map[string]*list.Element
	order   *list.List // front is the oldest insertion
}

func New[V any](ttl time.Duration, maxSize int, opts ...Option) (*Cache[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, ttl)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.now,
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}, nil
}

// Get returns the value for key. An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*Entry[V])
	if entry.expired(c.now()) {
		c.removeLocked(el)
		return zero, false
	}
	return entry.Data, true
}

// Set stores data under key. Overwriting a key counts as a fresh insertion.
func (c *Cache[V]) Set(key string, data V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}

	now := c.now()
	entry := &Entry[V]{
		Key:       key,
		Data:      data,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(c.ttl).UnixMilli(),
	}
	c.entries[key] = c.order.PushBack(entry)
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats lists keys in insertion order. Expired entries that have not been
// read yet are still counted.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry[V]).Key)
	}
	return Stats{Size: len(keys), Keys: keys}
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry[V]).expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

// RunJanitor sweeps on every tick until ctx is done. Reads still check
// expiry on their own, so the janitor only bounds memory held by stale keys.
func (c *Cache[V]) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	entry := el.Value.(*Entry[V])
	delete(c.entries, entry.Key)
	c.order.Remove(el)
}
