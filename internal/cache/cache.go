// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/marquee/internal/metrics"
)

// cleanupInterval bounds how long expired entries stay in memory when
// nobody reads them.
const cleanupInterval = 5 * time.Minute

type item[V any] struct {
	val     V
	expires time.Time
}

// Cache is a TTL map of V. Concurrent Get-modify-Set sequences on one key
// are not serialised; the last Set wins.
type Cache[V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]item[V]

	hits, misses, evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// Stats are cumulative counters since New.
type Stats struct {
	Hits, Misses, Evictions int64
}

// New starts a cache whose entries live for ttl unless set with
// SetWithTTL. name labels the hit and miss counters.
func New[V any](name string, ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		name:  name,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]item[V]),
		stop:  make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the live value for key. An expired entry counts as a miss
// and is dropped.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.now().After(it.expires) {
		c.mu.Lock()
		if cur, still := c.items[key]; still && cur.expires.Equal(it.expires) {
			delete(c.items, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	metrics.CacheHits.WithLabelValues(c.name).Inc()
	return it.val, true
}

func (c *Cache[V]) Set(key string, v V) { c.SetWithTTL(key, v, c.ttl) }

func (c *Cache[V]) SetWithTTL(key string, v V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = item[V]{val: v, expires: c.now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// DeletePrefix drops every key starting with prefix and reports how many
// went.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired ones included until the next sweep.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Evictions: c.evictions.Load()}
}

// Close stops the sweeper. The cache keeps working without it.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) cleanupLoop() {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, it := range c.items {
		if now.After(it.expires) {
			delete(c.items, k)
			c.evictions.Add(1)
		}
	}
}
