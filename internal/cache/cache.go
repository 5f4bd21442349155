package cache

import (
	"sync"
	"time"
)

// Cache is a small in-process TTL cache. Entries expire lazily on read;
// there is no background sweeper because the working set here is a handful
// of keys (admin counters and the like).
type Cache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]item
}

type item struct {
	val       any
	expiresAt time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache{
		ttl:   ttl,
		items: make(map[string]item),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		// re-check under the write lock; a Set may have raced us
		if cur, still := c.items[key]; still && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return it.val, true
}

func (c *Cache) Set(key string, val any) {
	c.mu.Lock()
	c.items[key] = item{val: val, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}
