package dedupe

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache remembers recently produced values by content hash. Entries expire
// after ttl and the least recently used entry is evicted beyond capacity.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](capacity, nil, ttl)}
}

// MarkSeen records key with its value.
func (c *Cache[V]) MarkSeen(key string, value V) {
	c.lru.Add(key, value)
}

// Get returns the value stored for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
