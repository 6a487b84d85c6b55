package domcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/playsense/storewatch/internal/extract"
)

// fakeDOM simulates a document: selectors map to element names, and
// elements can be detached.
type fakeDOM struct {
	elements map[string]string
	detached map[string]bool
	lookups  int
}

func (d *fakeDOM) lookup(sel string) (string, bool) {
	d.lookups++
	el, ok := d.elements[sel]
	return el, ok
}

func (d *fakeDOM) alive(el string) bool {
	return !d.detached[el]
}

func newFakeCache(d *fakeDOM) *ElementCache[string] {
	return NewElementCache(d.lookup, d.alive)
}

func TestElementCacheMemoizes(t *testing.T) {
	dom := &fakeDOM{elements: map[string]string{".hero": "hero-el"}}
	c := newFakeCache(dom)

	for i := 0; i < 3; i++ {
		el, ok := c.Get(".hero")
		if !ok || el != "hero-el" {
			t.Fatalf("Get = %q, %v", el, ok)
		}
	}
	if dom.lookups != 1 {
		t.Errorf("lookups = %d, want 1", dom.lookups)
	}
}

func TestElementCacheNegativeEntries(t *testing.T) {
	dom := &fakeDOM{elements: map[string]string{}}
	c := newFakeCache(dom)

	for i := 0; i < 3; i++ {
		if _, ok := c.Get(".missing"); ok {
			t.Fatal("expected miss")
		}
	}
	if dom.lookups != 1 {
		t.Errorf("lookups = %d, want 1 (negative result must be cached)", dom.lookups)
	}
}

func TestElementCacheDetachedRequeries(t *testing.T) {
	dom := &fakeDOM{
		elements: map[string]string{".hero": "hero-v1"},
		detached: map[string]bool{},
	}
	c := newFakeCache(dom)

	if el, _ := c.Get(".hero"); el != "hero-v1" {
		t.Fatalf("el = %q", el)
	}

	// Host page replaces the element.
	dom.detached["hero-v1"] = true
	dom.elements[".hero"] = "hero-v2"

	el, ok := c.Get(".hero")
	if !ok || el != "hero-v2" {
		t.Errorf("Get after detach = %q, %v; want hero-v2", el, ok)
	}
	if dom.lookups != 2 {
		t.Errorf("lookups = %d, want 2", dom.lookups)
	}
}

func TestElementCacheFIFOEviction(t *testing.T) {
	dom := &fakeDOM{elements: map[string]string{}}
	for i := 0; i < 60; i++ {
		sel := fmt.Sprintf(".s%d", i)
		dom.elements[sel] = sel
	}
	c := newFakeCache(dom)

	for i := 0; i < 60; i++ {
		c.Get(fmt.Sprintf(".s%d", i))
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want %d", c.Len(), DefaultCapacity)
	}

	// Oldest entries were evicted: fetching .s0 queries fresh.
	before := dom.lookups
	c.Get(".s0")
	if dom.lookups != before+1 {
		t.Error("evicted entry should have required a fresh lookup")
	}
}

func TestElementCacheSweep(t *testing.T) {
	dom := &fakeDOM{
		elements: map[string]string{".a": "a", ".b": "b"},
		detached: map[string]bool{},
	}
	c := newFakeCache(dom)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Get(".a")
	c.Get(".b")
	dom.detached["a"] = true

	// Not enough activity elapsed: entry survives.
	c.Get(".b")
	if c.Len() != 2 {
		t.Fatalf("Len = %d before sweep window", c.Len())
	}

	clock = clock.Add(DefaultSweepInterval + time.Second)
	c.Get(".b")
	if c.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", c.Len())
	}
}

func TestElementCacheInvalidate(t *testing.T) {
	dom := &fakeDOM{elements: map[string]string{".a": "a"}}
	c := newFakeCache(dom)
	c.Get(".a")
	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("Len = %d after invalidate", c.Len())
	}
	c.Get(".a")
	if dom.lookups != 2 {
		t.Errorf("lookups = %d, want 2", dom.lookups)
	}
}

func TestResultCacheFIFO(t *testing.T) {
	c := NewResultCache()
	for i := 0; i < DefaultCapacity+5; i++ {
		url := fmt.Sprintf("https://store.steampowered.com/app/%d/", i)
		c.Set(url, &extract.GameInfo{AppID: fmt.Sprint(i)})
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want %d", c.Len(), DefaultCapacity)
	}
	if _, found := c.Get("https://store.steampowered.com/app/0/"); found {
		t.Error("oldest entry should have been evicted")
	}
	if info, found := c.Get(fmt.Sprintf("https://store.steampowered.com/app/%d/", DefaultCapacity+4)); !found || info.AppID == "" {
		t.Error("newest entry missing")
	}
}

func TestResultCacheReplaceKeepsBound(t *testing.T) {
	c := NewResultCache()
	c.Set("u", &extract.GameInfo{AppID: "1"})
	c.Set("u", &extract.GameInfo{AppID: "2"})
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	info, _ := c.Get("u")
	if info.AppID != "2" {
		t.Errorf("AppID = %q, want 2", info.AppID)
	}
}
