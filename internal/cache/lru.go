package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is called after an entry leaves the cache through expiry, capacity
// eviction or Delete. It runs without the cache lock held.
type EvictFunc[T any] func(key string, data T)

// LRUCache is a size-bounded cache whose entries also expire after a TTL.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict EvictFunc[T]
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// OnEvict registers fn to be told about removed entries. Set it before use.
func (c *LRUCache[T]) OnEvict(fn EvictFunc[T]) *LRUCache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var evicted []*cacheItem[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		evicted = append(evicted, c.removeElement(elem))
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return item.data, true
}

// Touch is Get that also restarts the TTL of a live entry, giving it sliding
// expiry.
func (c *LRUCache[T]) Touch(key string) (T, bool) {
	var evicted []*cacheItem[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		evicted = append(evicted, c.removeElement(elem))
		return zero, false
	}
	item.expiresAt = now.Add(c.ttl)
	c.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores data under key and resets its TTL. The least recently used entry is
// evicted when the cache is full.
func (c *LRUCache[T]) Set(key string, data T) {
	var evicted []*cacheItem[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(item)
	for c.lru.Len() > c.maxSize {
		evicted = append(evicted, c.removeElement(c.lru.Back()))
	}
}

// Delete removes key if present.
func (c *LRUCache[T]) Delete(key string) {
	var evicted []*cacheItem[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		evicted = append(evicted, c.removeElement(elem))
	}
}

// CleanExpired removes every expired entry and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	var evicted []*cacheItem[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			evicted = append(evicted, c.removeElement(elem))
		}
		elem = prev
	}
	return len(evicted)
}

// Size returns the number of entries, expired ones included until cleaned.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) *cacheItem[T] {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
	return item
}

func (c *LRUCache[T]) notify(items []*cacheItem[T]) {
	c.mu.Lock()
	fn := c.onEvict
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, it := range items {
		fn(it.key, it.data)
	}
}
