package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps the Rod page under observation. One Tab per Watcher: this
// system watches the current browser tab, never a pool.
type Tab struct {
	Page    *rod.Page
	PageURL string
	manager *Manager
	// owned is true for tabs this process opened. Attached tabs belong to
	// the user and are never closed from here.
	owned bool
}

// Open creates a new stealth tab and navigates it to pageURL.
func Open(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL, manager: mgr, owned: true}, nil
}

// Attach adopts the first existing page whose URL satisfies match. This is
// the remote mode: the user is already on the page, storewatch joins it.
func Attach(ctx context.Context, mgr *Manager, match func(url string) bool) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	for _, page := range pages {
		info, err := page.Context(ctx).Info()
		if err != nil {
			continue
		}
		if match == nil || match(info.URL) {
			return &Tab{Page: page, PageURL: info.URL, manager: mgr}, nil
		}
	}
	return nil, fmt.Errorf("browser: no matching tab")
}

// CurrentURL reads location.href from the live page.
func (t *Tab) CurrentURL(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => String(window.location.href)`)
	if err != nil {
		return "", fmt.Errorf("browser: read url: %w", err)
	}
	return res.Value.Str(), nil
}

// SnapshotHTML serialises the complete live DOM as outer HTML.
func (t *Tab) SnapshotHTML(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// WaitForSelector polls until the selector matches or the timeout expires.
func (t *Tab) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		has, _, err := t.Page.Context(ctx).Has(selector)
		if err == nil && has {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// WaitStable retries the known anchor selectors until one appears or the
// ceiling passes. Returning false is non-fatal: the host page's transition
// animations can hold the DOM incomplete, and the caller proceeds anyway.
func (t *Tab) WaitStable(ctx context.Context, selectors []string, ceiling time.Duration) bool {
	deadline := time.Now().Add(ceiling)
	for {
		for _, sel := range selectors {
			if has, _, err := t.Page.Context(ctx).Has(sel); err == nil && has {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Element returns the first match for selector, or ok=false when the
// selector matches nothing or is invalid.
func (t *Tab) Element(selector string) (*rod.Element, bool) {
	has, el, err := t.Page.Has(selector)
	if err != nil || !has {
		return nil, false
	}
	return el, true
}

// Attached reports whether el is still part of the live document.
func (t *Tab) Attached(el *rod.Element) bool {
	if el == nil {
		return false
	}
	res, err := el.Eval(`() => document.contains(this)`)
	return err == nil && res.Value.Bool()
}

// Visible reports whether el is attached and rendered.
func (t *Tab) Visible(el *rod.Element) bool {
	if el == nil || !t.Attached(el) {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// Eval runs js in the page with structured arguments. Rod marshals args as
// JSON; nothing is ever spliced into the source text.
func (t *Tab) Eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return t.Page.Context(ctx).Eval(js, args...)
}

// AddBinding exposes a page-to-Go callback under the given name.
func (t *Tab) AddBinding(name string) error {
	return proto.RuntimeAddBinding{Name: name}.Call(t.Page)
}

// Close closes tabs this process opened. Attached tabs are left alone.
func (t *Tab) Close() error {
	if t.owned && t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
