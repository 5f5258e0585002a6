package analytics

import (
	"container/list"
	"sync"
	"time"
)

// memoCache is a small TTL-bounded LRU used to memoize derived analytics.
// Entries are keyed by a caller-supplied version token that changes on every
// write to the underlying store, so a stale dataset can never be served past
// its TTL.
type memoCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
}

type memoEntry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

func newMemoCache[T any](maxSize int, ttl time.Duration) *memoCache[T] {
	return &memoCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *memoCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*memoEntry[T])
	if time.Now().After(entry.expiresAt) {
		delete(c.items, entry.key)
		c.order.Remove(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *memoCache[T]) set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &memoEntry[T]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(entry)

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			old := oldest.Value.(*memoEntry[T])
			delete(c.items, old.key)
			c.order.Remove(oldest)
		}
	}
}
