package llm

import (
	"context"
	"sync"

	"github.com/perbu/promptforge/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes successful responses by exact request. Concurrent misses
// for the same request share one upstream call. When the cache holds max
// entries the oldest one is evicted. Errors and empty responses are never
// cached.
type Cache struct {
	next Generator
	max  int

	mu      sync.RWMutex
	entries map[string]string
	order   []string // insertion order, oldest first

	group singleflight.Group
}

// NewCache wraps next with a response cache of at most max entries.
func NewCache(next Generator, max int) *Cache {
	if max <= 0 {
		max = 1
	}
	return &Cache{
		next:    next,
		max:     max,
		entries: make(map[string]string),
	}
}

// Generate implements Generator.
func (c *Cache) Generate(ctx context.Context, req Request) (string, error) {
	key := req.cacheKey()
	if text, ok := c.get(key); ok {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return text, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		text, err := c.next.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		c.put(key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.entries[key]
	return text, ok
}

func (c *Cache) put(key, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.max {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[key] = text
	c.order = append(c.order, key)
}
