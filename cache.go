package gfxcore

import (
	"sync"

	"github.com/gogpu/gfxcore/container"
)

// Cache is a byte-keyed lookup table for derived objects (backend
// passes, descriptor state). It wraps container.Map with the
// dedicated lock the map itself does not carry, making it safe for
// concurrent use.
type Cache[V any] struct {
	mu sync.Mutex
	m  *container.Map[[]byte, V]
}

// NewCache creates an empty cache.
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{
		m: container.NewMap[[]byte, V](container.BytesHash, container.BytesEqual),
	}
}

// Lookup returns the value stored under key.
func (c *Cache[V]) Lookup(key []byte) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.m.Search(key); n != nil {
		return n.Value, true
	}
	var zero V
	return zero, false
}

// Insert stores value under a copy of key, replacing an existing
// entry.
func (c *Cache[V]) Insert(key []byte, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.m.Search(key); n != nil {
		n.Value = value
		return
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	c.m.Insert(owned, value)
}

// Remove drops the entry stored under key.
func (c *Cache[V]) Remove(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.m.Search(key); n != nil {
		c.m.Erase(n)
	}
}

// Range calls fn for every entry until fn returns false.
func (c *Cache[V]) Range(fn func(key []byte, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := c.m.First(); n != nil; n = c.m.Next(n) {
		if !fn(n.Key, n.Value) {
			return
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Len()
}

// Clear drops all entries and releases storage.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Clear()
}
