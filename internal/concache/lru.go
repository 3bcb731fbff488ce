package concache

import (
	"container/list"
	"sync"
)

type lruEntry[K comparable, V any] struct {
	key K
	val V
}

// LRU is a bounded memo for pure functions. When the cache is full the
// least recently used entry is evicted. Errors are never cached.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	items   map[K]*list.Element
}

// NewLRU returns an LRU memo holding at most maxSize entries.
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	return &LRU[K, V]{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[K]*list.Element),
	}
}

// Get returns the cached value for key, computing and storing it via fn on
// a miss.
func (c *LRU[K, V]) Get(key K, fn func() (V, error)) (V, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		v := el.Value.(*lruEntry[K, V]).val
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := fn()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		// Lost a race with another caller; keep the stored value.
		c.order.MoveToFront(el)
		v = el.Value.(*lruEntry[K, V]).val
	} else {
		c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, val: v})
		if c.order.Len() > c.maxSize {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry[K, V]).key)
		}
	}
	c.mu.Unlock()
	return v, nil
}

// Len reports the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
