// Package cache provides the process-local instance cache used to avoid
// rebuilding execution contexts on every request. Entries are disposable:
// eviction or process restart only costs a reconstruction, never correctness.
package cache

import "sync"

type entry struct {
	value        any
	lastAccessed uint64
}

// LRU is a bounded map with exact least-recently-used eviction. Recency is
// tracked with a monotonic counter per entry and eviction scans for the
// minimum, which is fine at instance-cache scale.
type LRU struct {
	mu       sync.Mutex
	capacity int
	tick     uint64
	entries  map[string]*entry
}

// NewLRU returns a cache bounded to the given capacity. Capacity must be positive.
func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		entries:  make(map[string]*entry, capacity),
	}
}

// Get returns the cached value and marks it as most recently used.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	c.tick++
	e.lastAccessed = c.tick
	return e.value, true
}

// Set stores the value, evicting the least-recently-accessed entry when a new
// key would exceed capacity.
func (c *LRU) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.lastAccessed = c.tick
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	c.entries[key] = &entry{value: value, lastAccessed: c.tick}
}

// Has reports whether the key is present without updating recency.
func (c *LRU) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	return ok
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Clear drops every entry.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry, c.capacity)
}

func (c *LRU) evictOldest() {
	var (
		oldestKey string
		oldest    uint64
		found     bool
	)
	for key, e := range c.entries {
		if !found || e.lastAccessed < oldest {
			oldestKey = key
			oldest = e.lastAccessed
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// Noop is an InstanceCache that stores nothing. Swapping it in must never
// change correctness, only performance.
type Noop struct{}

func (Noop) Get(string) (any, bool) { return nil, false }
func (Noop) Set(string, any)        {}
func (Noop) Has(string) bool        { return false }
func (Noop) Len() int               { return 0 }
func (Noop) Clear()                 {}
