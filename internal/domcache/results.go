package domcache

import (
	"sync"

	"github.com/playsense/storewatch/internal/extract"
)

// ResultCache memoizes full detections by page URL so revisiting a page
// within one session skips the strategy chain. Bounded, FIFO eviction, no
// TTL: a navigation away and back inside one session sees the same markup.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*extract.GameInfo
	order    []string
	capacity int
}

// NewResultCache creates a result cache bounded to DefaultCapacity entries.
func NewResultCache() *ResultCache {
	return &ResultCache{
		entries:  make(map[string]*extract.GameInfo),
		capacity: DefaultCapacity,
	}
}

// Get returns the cached detection for url, if any.
func (c *ResultCache) Get(url string) (*extract.GameInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, found := c.entries[url]
	return info, found
}

// Set stores a detection, evicting oldest-first past capacity. Replacement
// is delete-then-insert; stored values are never mutated.
func (c *ResultCache) Set(url string, info *extract.GameInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.entries[url]; found {
		delete(c.entries, url)
		for i, u := range c.order {
			if u == url {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}

	c.entries[url] = info
	c.order = append(c.order, url)
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of cached detections.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
