// Package dedup suppresses reprocessing of inbound message ids.
package dedup

import "sync"

// Cache is a bounded, insertion-ordered set of message ids. When an
// insert pushes the set past capacity, the oldest trim-fraction of
// entries is removed in one pass. This is a deliberate trimming buffer,
// not an LRU: lookups never refresh an entry's position.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	trim      int
	seen      map[string]struct{}
	order     []string
	evictions uint64
}

// New creates a cache. Capacities below 1 are treated as 1; trim
// fractions outside (0, 1] fall back to 0.2.
func New(capacity int, trimFraction float64) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	if trimFraction <= 0 || trimFraction > 1 {
		trimFraction = 0.2
	}
	trim := int(float64(capacity) * trimFraction)
	if trim < 1 {
		trim = 1
	}
	return &Cache{
		capacity: capacity,
		trim:     trim,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id was already observed, recording it on first
// sight. It returns false exactly once per id until the id is evicted.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}

	c.seen[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.order) > c.capacity {
		c.trimOldest()
	}
	return false
}

// trimOldest removes the oldest trim entries. Caller holds c.mu.
func (c *Cache) trimOldest() {
	n := c.trim
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, id := range c.order[:n] {
		delete(c.seen, id)
	}
	remaining := make([]string, len(c.order)-n)
	copy(remaining, c.order[n:])
	c.order = remaining
	c.evictions += uint64(n)
}

// Len returns the number of ids currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Evictions returns the total number of ids removed by trimming.
func (c *Cache) Evictions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}
