// Package cache provides the feature caches a generated run can warm up.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// Used on its own for in-process runs and as L1 in two-phase caching.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counterEntry
	now      func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counterEntry),
		now:      time.Now,
	}
}

// Get returns the value at key, or nil when absent or expired.
func (c *LRUCache) Get(ctx context.Context, runID string, key string) ([]byte, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}
	fullKey := runID + ":" + key

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.remove(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores value at key for ttl, evicting the least recently used entries
// past capacity.
func (c *LRUCache) Set(ctx context.Context, runID string, key string, value []byte, ttl time.Duration) error {
	if runID == "" {
		return ErrRunIDRequired
	}
	fullKey := runID + ":" + key
	expires := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expires
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[fullKey] = c.order.PushFront(&cacheEntry{key: fullKey, value: value, expiresAt: expires})
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

// Delete removes key.
func (c *LRUCache) Delete(ctx context.Context, runID string, key string) error {
	if runID == "" {
		return ErrRunIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[runID+":"+key]; ok {
		c.remove(elem)
	}
	return nil
}

// GetSignals returns the cached signals of a user, or nil.
func (c *LRUCache) GetSignals(ctx context.Context, runID string, userID string) (*domain.Signals, error) {
	return loadSignals(ctx, c, runID, userID)
}

// SetSignals caches the signals of a user.
func (c *LRUCache) SetSignals(ctx context.Context, runID string, userID string, s *domain.Signals, ttl time.Duration) error {
	return storeSignals(ctx, c, runID, userID, s, ttl)
}

// IncrementCounter increments a windowed counter. The window starts on the
// first increment and resets once it has elapsed.
func (c *LRUCache) IncrementCounter(ctx context.Context, runID string, key string, window time.Duration) (int64, error) {
	if runID == "" {
		return 0, ErrRunIDRequired
	}
	fullKey := runID + ":counter:" + key

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.counters[fullKey]
	if !ok || now.After(entry.expiresAt) {
		c.counters[fullKey] = &counterEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	entry.count++
	return entry.count, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns the current size and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) remove(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
