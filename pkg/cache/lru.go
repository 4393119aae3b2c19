// Package cache provides a size-bounded LRU cache with cost-based eviction.
package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultSize is the default memory budget of an LRU (256 MB).
const DefaultSize = 256 * 1024 * 1024

// bytesPerKB is the number of bytes in a kilobyte.
const bytesPerKB = 1024.0

// LRU caches values up to a total size in bytes. When the budget is
// exceeded it evicts large, rarely used entries from the least recently
// used end first. It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu          sync.Mutex
	entries     map[K]*entry[K, V]
	head        *entry[K, V] // Most recently used.
	tail        *entry[K, V] // Least recently used.
	sizeOf      func(V) int64
	maxSize     int64
	currentSize int64

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key         K
	value       V
	size        int64
	accessCount int64
	prev        *entry[K, V]
	next        *entry[K, V]
}

// evictionCost is the access count per KB; cheaper entries go first.
func (e *entry[K, V]) evictionCost() float64 {
	if e.size == 0 {
		return float64(e.accessCount)
	}

	sizeKB := max(float64(e.size)/bytesPerKB, 1)

	return float64(e.accessCount) / sizeKB
}

// New creates an LRU holding at most maxSize bytes as measured by sizeOf.
// A non-positive maxSize selects DefaultSize.
func New[K comparable, V any](maxSize int64, sizeOf func(V) int64) *LRU[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}

	return &LRU[K, V]{
		entries: make(map[K]*entry[K, V]),
		sizeOf:  sizeOf,
		maxSize: maxSize,
	}
}

// Get returns the value cached under key.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		var zero V

		return zero, false
	}

	c.hits.Add(1)

	e.accessCount++
	c.moveToFront(e)

	return e.value, true
}

// Put caches value under key. Values larger than the whole budget are not
// cached; an existing key keeps its value and is only touched.
func (c *LRU[K, V]) Put(key K, value V) {
	size := c.sizeOf(value)
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.accessCount++
		c.moveToFront(e)

		return
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	e := &entry[K, V]{key: key, value: value, size: size, accessCount: 1}

	c.entries[key] = e
	c.currentSize += size
	c.addToFront(e)
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.evict(e)
	}
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

func (c *LRU[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}

	c.unlink(e)
	c.addToFront(e)
}

func (c *LRU[K, V]) addToFront(e *entry[K, V]) {
	e.prev = nil
	e.next = c.head

	if c.head != nil {
		c.head.prev = e
	}

	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}

func (c *LRU[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *LRU[K, V]) evict(e *entry[K, V]) {
	c.unlink(e)
	delete(c.entries, e.key)
	c.currentSize -= e.size
}

// evictionSampleSize is the number of tail entries considered per eviction.
const evictionSampleSize = 5

// evictLowestCost evicts the cheapest of the least recently used entries.
func (c *LRU[K, V]) evictLowestCost() {
	if c.tail == nil {
		return
	}

	victim := c.tail
	lowestCost := victim.evictionCost()

	e := c.tail.prev
	for i := 1; e != nil && i < evictionSampleSize; i++ {
		if cost := e.evictionCost(); cost < lowestCost {
			lowestCost = cost
			victim = e
		}

		e = e.prev
	}

	c.evict(victim)
}
