package decode

import (
	"container/list"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cdrn/memepool/internal/model"
)

// Cache memoizes TxAnnotation by hash with a TTL, evicting the least
// recently used entry once capacity is reached. It mirrors the
// teacher's own generic LRU-with-TTL shape (map + doubly-linked list +
// mutex) rather than reaching for a third-party LRU — that is a
// deliberate choice the teacher itself makes for this exact data
// structure (see DESIGN.md).
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[common.Hash]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	hash      common.Hash
	value     model.TxAnnotation
	expiresAt time.Time
	lastUsed  time.Time
}

// NewCache creates an annotation cache with the given capacity and TTL.
// ttl must be >= 1h per the data-model invariant in §3.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[common.Hash]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached annotation for hash if present and unexpired.
func (c *Cache) Get(hash common.Hash, now time.Time) (model.TxAnnotation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[hash]
	if !ok {
		return model.TxAnnotation{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if now.After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, hash)
		return model.TxAnnotation{}, false
	}
	entry.lastUsed = now
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Put stores an annotation, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Put(hash common.Hash, value model.TxAnnotation, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[hash]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = now.Add(c.ttl)
		entry.lastUsed = now
		c.order.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{hash: hash, value: value, expiresAt: now.Add(c.ttl), lastUsed: now}
	elem := c.order.PushFront(entry)
	c.items[hash] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).hash)
		}
	}
}

// Len reports the number of cached entries, for metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Reset clears the cache. Called on Node Client reconnect (P10).
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[common.Hash]*list.Element)
	c.order = list.New()
}
