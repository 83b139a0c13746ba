package cache

import (
	"image"
	"sync"
	"sync/atomic"
)

type memoryEntry struct {
	img      image.Image
	cost     int64
	accessed atomic.Int64
}

// Memory implements a cost-bounded in-memory cache for decoded tile images.
//
// Lookups take only the read lock; recency is tracked with an atomic tick per
// entry so concurrent readers never serialize on each other. Writers evict the
// stalest entries until the new total cost fits, so the total resident cost
// never exceeds capacity after an insertion.
type Memory struct {
	mu       sync.RWMutex
	capacity int64
	cost     int64
	items    map[string]*memoryEntry
	tick     atomic.Int64
}

// NewMemory creates a memory cache bounded to capacity bytes of decoded
// image data.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*memoryEntry),
	}
}

func (c *Memory) Get(key string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}

	e.accessed.Store(c.tick.Add(1))
	return e.img, true
}

// Set inserts img under key with the given cost in bytes. A nil image or a
// non-positive cost is a no-op. An image whose cost alone exceeds the cache
// capacity is rejected outright: evicting the whole working set for an entry
// that can never share it would empty the cache on every oversized insert.
func (c *Memory) Set(key string, img image.Image, cost int64) {
	if img == nil || cost <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cost > c.capacity {
		return
	}

	if old, ok := c.items[key]; ok {
		c.cost -= old.cost
		delete(c.items, key)
	}

	c.evictLocked(c.capacity - cost)

	e := &memoryEntry{img: img, cost: cost}
	e.accessed.Store(c.tick.Add(1))
	c.items[key] = e
	c.cost += cost
}

// SetCapacity changes the cost bound, evicting entries if it shrank below the
// current total.
func (c *Memory) SetCapacity(capacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = capacity
	c.evictLocked(capacity)
}

// evictLocked removes least-recently-used entries until the total cost is at
// most target. Tile caches hold at most a few hundred entries, so a linear
// scan per eviction beats maintaining a separate recency structure under the
// read path.
func (c *Memory) evictLocked(target int64) {
	for c.cost > target {
		var oldestKey string
		var oldest *memoryEntry
		for k, e := range c.items {
			if oldest == nil || e.accessed.Load() < oldest.accessed.Load() {
				oldestKey, oldest = k, e
			}
		}
		if oldest == nil {
			return
		}
		c.cost -= oldest.cost
		delete(c.items, oldestKey)
	}
}

// Cost returns the total cost of resident entries in bytes.
func (c *Memory) Cost() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cost
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryEntry)
	c.cost = 0
}
