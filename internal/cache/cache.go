// Package cache provides the in-process LRU cache shared by the dedupe
// store (presence hits) and the message formatter (rendered static
// blocks). Entries carry an optional TTL; expired entries are dropped
// lazily on read and by a coarse periodic sweep.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time // zero means no expiry
}

// Cache is an LRU map with optional per-entry TTL.
// All operations take a single mutex; reads promote the entry.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front = most recently used
}

// New creates a cache bounded to maxSize entries. maxSize must be > 0.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Get returns the value for key, or (nil, false) on miss or expiry.
// Expired entries are removed on read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return ent.value, true
}

// Set inserts or replaces key with no expiry.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, 0)
}

// SetTTL inserts or replaces key, expiring after ttl (0 = never).
// The least-recently-used entry is evicted on overflow.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: expires})
	c.items[key] = el

	if c.order.Len() > c.maxSize {
		c.removeLocked(c.order.Back())
	}
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*entry)
		if !ent.expiresAt.IsZero() && now.After(ent.expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Run sweeps expired entries on a coarse timer until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
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

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	ent := el.Value.(*entry)
	delete(c.items, ent.key)
	c.order.Remove(el)
}
