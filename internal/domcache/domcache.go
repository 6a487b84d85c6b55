// Package domcache memoizes DOM lookups and detection results. Lookups over
// CDP are the expensive operation in the pipeline, and the same handful of
// selectors is queried on every activation; both caches are small, bounded,
// and evict oldest-first.
package domcache

import (
	"sync"
	"time"
)

const (
	// DefaultCapacity bounds both caches.
	DefaultCapacity = 50
	// DefaultSweepInterval is how much wall-clock-relative activity passes
	// between sweeps of detached entries. Not a hard timer: the sweep runs
	// lazily on the next access after the interval elapses.
	DefaultSweepInterval = 30 * time.Second
)

type entry[E any] struct {
	el E
	// ok is false for a cached negative: the selector matched nothing or was
	// invalid. Negative entries are cached too, so a broken selector does not
	// trigger a fresh query on every tick.
	ok bool
}

// ElementCache memoizes selector lookups within one page load. The lookup
// and liveness checks are injected so the cache itself stays free of CDP
// plumbing.
type ElementCache[E any] struct {
	lookup func(selector string) (E, bool)
	alive  func(E) bool

	mu        sync.Mutex
	entries   map[string]entry[E]
	order     []string
	capacity  int
	sweepGap  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewElementCache creates a cache over the given lookup and liveness
// functions. lookup returning false is a legitimate negative and is cached.
func NewElementCache[E any](lookup func(string) (E, bool), alive func(E) bool) *ElementCache[E] {
	return &ElementCache[E]{
		lookup:   lookup,
		alive:    alive,
		entries:  make(map[string]entry[E]),
		capacity: DefaultCapacity,
		sweepGap: DefaultSweepInterval,
		now:      time.Now,
	}
}

// Get returns the element for selector, querying fresh when the cache has no
// entry or the cached element is no longer attached to the live document.
func (c *ElementCache[E]) Get(selector string) (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeSweep()

	if e, found := c.entries[selector]; found {
		if !e.ok {
			var zero E
			return zero, false
		}
		if c.alive(e.el) {
			return e.el, true
		}
		c.remove(selector)
	}

	el, ok := c.lookup(selector)
	c.insert(selector, entry[E]{el: el, ok: ok})
	if !ok {
		var zero E
		return zero, false
	}
	return el, true
}

// Invalidate drops every entry. Called on navigation: nothing from the
// previous document can be trusted.
func (c *ElementCache[E]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[E])
	c.order = c.order[:0]
}

// Len reports the number of cached entries, negatives included.
func (c *ElementCache[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insert is always delete-then-insert; entries are never mutated in place.
func (c *ElementCache[E]) insert(selector string, e entry[E]) {
	c.remove(selector)
	c.entries[selector] = e
	c.order = append(c.order, selector)
	for len(c.order) > c.capacity {
		c.remove(c.order[0])
	}
}

func (c *ElementCache[E]) remove(selector string) {
	if _, found := c.entries[selector]; !found {
		return
	}
	delete(c.entries, selector)
	for i, s := range c.order {
		if s == selector {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *ElementCache[E]) maybeSweep() {
	now := c.now()
	if now.Sub(c.lastSweep) < c.sweepGap {
		return
	}
	c.lastSweep = now
	for sel, e := range c.entries {
		if e.ok && !c.alive(e.el) {
			c.remove(sel)
		}
	}
}
