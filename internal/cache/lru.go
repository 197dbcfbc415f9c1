// Package cache provides a byte-budgeted LRU used for decoded segment
// blocks.
package cache

import (
	"container/list"
	"sync"
)

// LRU is a concurrency-safe least-recently-used cache with a byte
// budget. Values are treated as immutable; callers must not mutate a
// returned slice.
type LRU struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	order    *list.List
	entries  map[string]*list.Element
}

type lruEntry struct {
	key string
	val []byte
}

// NewLRU creates a cache holding up to capacity bytes of values.
// A non-positive capacity disables caching entirely.
func NewLRU(capacity int64) *LRU {
	return &LRU{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached value for key and marks it recently used.
func (c *LRU) Get(key string) ([]byte, bool) {
	if c == nil || c.capacity <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).val, true
}

// Set stores val under key, evicting least-recently-used entries until
// the byte budget holds. Values larger than the budget are not cached.
func (c *LRU) Set(key string, val []byte) {
	if c == nil || c.capacity <= 0 || int64(len(val)) > c.capacity {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*lruEntry)
		c.used += int64(len(val)) - int64(len(e.val))
		e.val = val
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&lruEntry{key: key, val: val})
		c.entries[key] = el
		c.used += int64(len(val))
	}

	for c.used > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		e := back.Value.(*lruEntry)
		c.order.Remove(back)
		delete(c.entries, e.key)
		c.used -= int64(len(e.val))
	}
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
