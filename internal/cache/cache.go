// Package cache memoizes parsed filter trees by definition text.
package cache

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultSize is the number of definitions kept when no size is configured.
const DefaultSize = 256

type entry[V any] struct {
	source string
	value  V
}

// Cache maps definition text to a parsed value. Keys are xxhash digests of
// the text; the text itself is kept to reject digest collisions. When the
// cache is full it is cleared rather than evicting single entries.
type Cache[V any] struct {
	entries *xsync.MapOf[uint64, *entry[V]]
	size    int
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache holding up to size entries. Zero selects DefaultSize;
// a negative size disables caching.
func New[V any](size int) *Cache[V] {
	if size == 0 {
		size = DefaultSize
	}
	return &Cache[V]{
		entries: xsync.NewMapOf[uint64, *entry[V]](),
		size:    size,
	}
}

// Enabled reports whether the cache stores anything.
func (c *Cache[V]) Enabled() bool {
	return c != nil && c.size > 0
}

// Get returns the value cached for source.
func (c *Cache[V]) Get(source string) (V, bool) {
	var zero V
	if !c.Enabled() {
		return zero, false
	}
	e, ok := c.entries.Load(xxhash.Sum64String(source))
	if !ok || e.source != source {
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// GetOrCompute returns the cached value for source, computing and storing it
// on a miss. Errors from compute are returned and never cached.
func (c *Cache[V]) GetOrCompute(source string, compute func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(source); ok {
		return v, true, nil
	}
	v, err := compute()
	if err != nil {
		return v, false, err
	}
	c.Put(source, v)
	return v, false, nil
}

// Put stores value for source.
func (c *Cache[V]) Put(source string, value V) {
	if !c.Enabled() {
		return
	}
	if c.entries.Size() >= c.size {
		c.entries.Clear()
	}
	c.entries.Store(xxhash.Sum64String(source), &entry[V]{source: source, value: value})
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Size()
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	if c != nil {
		c.entries.Clear()
	}
}

// Stats returns the hit and miss counters.
func (c *Cache[V]) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
