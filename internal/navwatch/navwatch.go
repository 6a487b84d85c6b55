// Package navwatch detects in-page navigations: history API calls that
// change the address bar without a network load, plus DOM churn in the known
// content containers that signals the host page swapped game content in
// place. Detected navigations are delivered to listeners in registration
// order with per-listener error isolation.
package navwatch

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/playsense/storewatch/internal/browser"
)

//go:embed nav.js
var navJS []byte

const bindingName = "__storewatch_nav"

// Config for creating an Observer.
type Config struct {
	Tab *browser.Tab

	// DebounceWindow batches mutation signals. Default: 150ms.
	DebounceWindow time.Duration
	// BatchCap bounds one processing pass; excess dropped. Default: 50.
	BatchCap int
	// SettleDelay is how long the "navigating" flag stays up after a URL
	// change, covering the host page's transition animations. Default: 500ms.
	SettleDelay time.Duration
	// ContentSelectors are the large containers the mutation watcher scopes
	// to; document body is the fallback when none exist.
	ContentSelectors []string
	// AllowClasses is the class-name allow-list: only added nodes whose
	// class contains one of these count as a navigation signal.
	AllowClasses []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if len(c.ContentSelectors) == 0 {
		c.ContentSelectors = []string{
			"#responsive_page_template_content",
			".responsive_page_content",
			"#application_root",
		}
	}
	if len(c.AllowClasses) == 0 {
		c.AllowClasses = []string{
			"apphub_",
			"game_area_",
			"game_page_",
			"page_content",
			"breadcrumbs",
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type signal struct {
	kind string // "url" | "mut"
	url  string
	mut  Mutation
}

// Observer watches one tab for in-page navigations.
type Observer struct {
	tab    *browser.Tab
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	rawCh chan signal
	deb   *debouncer
	em    *emitter

	mu          sync.Mutex
	currentURL  string
	settleTimer *time.Timer
	lastNavAt   time.Time

	navigating atomic.Bool
}

// New creates an Observer for the given tab. The observer is inert until
// Start is called.
func New(cfg Config) *Observer {
	cfg.defaults()

	o := &Observer{
		tab:    cfg.Tab,
		cfg:    cfg,
		logger: cfg.Logger,
		rawCh:  make(chan signal, 256),
		em:     newEmitter(cfg.Logger),
	}
	if cfg.Tab != nil {
		o.currentURL = cfg.Tab.PageURL
	}
	o.deb = newDebouncer(debounceConfig{
		Window:   cfg.DebounceWindow,
		BatchCap: cfg.BatchCap,
	}, o.onFlush)
	return o
}

// OnNavigation registers a listener. Delivery follows registration order.
func (o *Observer) OnNavigation(l Listener) {
	o.em.subscribe(l)
}

// Start installs the history hooks and mutation watcher in the page and
// begins processing signals. The observer's lifetime is bounded by ctx.
func (o *Observer) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	if err := o.tab.AddBinding(bindingName); err != nil {
		o.logger.Warn("navwatch: add binding failed (may already exist)", "error", err)
	}

	go o.listenBinding()

	if err := o.inject(); err != nil {
		return err
	}

	go o.loop()
	return nil
}

// Reinject reinstalls the page-side hooks. Needed after a full document
// replacement; the script itself is re-entry safe.
func (o *Observer) Reinject() error {
	return o.inject()
}

// Stop cancels processing and any pending settle timer. Safe to call on an
// observer that was never started.
func (o *Observer) Stop() {
	o.mu.Lock()
	if o.settleTimer != nil {
		o.settleTimer.Stop()
		o.settleTimer = nil
	}
	o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Navigating reports whether a navigation happened within the settle window.
func (o *Observer) Navigating() bool {
	return o.navigating.Load()
}

// CurrentURL returns the last URL the observer has seen.
func (o *Observer) CurrentURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentURL
}

func (o *Observer) inject() error {
	cfg := map[string]any{
		"containers": o.cfg.ContentSelectors,
		"allow":      o.cfg.AllowClasses,
	}
	if _, err := o.tab.Eval(o.ctx, `(cfg) => { window.__storewatch_cfg = cfg; }`, cfg); err != nil {
		o.logger.Warn("navwatch: set config failed", "error", err)
	}
	if _, err := o.tab.Eval(o.ctx, string(navJS)); err != nil {
		return err
	}
	o.logger.Debug("navwatch: hooks injected", "url", o.CurrentURL())
	return nil
}

// listenBinding receives calls from the injected hooks.
func (o *Observer) listenBinding() {
	o.tab.Page.Context(o.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		var events []struct {
			Kind string `json:"kind"`
			URL  string `json:"url"`
			Cls  string `json:"cls"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &events); err != nil {
			o.logger.Warn("navwatch: parse binding payload", "error", err)
			return
		}

		now := time.Now()
		for _, ev := range events {
			switch ev.Kind {
			case "url":
				o.rawCh <- signal{kind: "url", url: ev.URL}
			case "mut":
				if classAllowed(ev.Cls, o.cfg.AllowClasses) {
					o.rawCh <- signal{kind: "mut", mut: Mutation{Class: ev.Cls, At: now}}
				}
			}
		}
	})()
}

// loop is the processing loop: URL signals handled immediately, mutation
// signals debounced and then checked against the live URL.
func (o *Observer) loop() {
	for {
		select {
		case <-o.ctx.Done():
			return

		case sig := <-o.rawCh:
			switch sig.kind {
			case "url":
				o.handleURL(sig.url)
			case "mut":
				o.deb.add(sig.mut)
			}

		case <-o.deb.timerC():
			o.deb.flush()
		}
	}
}

// onFlush runs after a quiet window of allow-listed content mutations. The
// history hooks catch explicit navigations; this path catches content swaps
// the host performs without touching the history API.
func (o *Observer) onFlush(batch []Mutation) {
	url, err := o.tab.CurrentURL(o.ctx)
	if err != nil {
		o.logger.Debug("navwatch: read url after mutations", "error", err)
		return
	}
	o.logger.Debug("navwatch: content mutations settled",
		"records", len(batch), "url", url)
	o.handleURL(url)
}

// handleURL emits a navigation event when the URL actually changed, then
// holds the navigating flag up for the settle window.
func (o *Observer) handleURL(newURL string) {
	if newURL == "" {
		return
	}

	o.mu.Lock()
	if newURL == o.currentURL {
		o.mu.Unlock()
		return
	}
	prev := o.currentURL
	o.currentURL = newURL
	now := time.Now()
	o.lastNavAt = now

	o.navigating.Store(true)
	if o.settleTimer != nil {
		o.settleTimer.Stop()
	}
	o.settleTimer = time.AfterFunc(o.cfg.SettleDelay, func() {
		o.navigating.Store(false)
	})
	o.mu.Unlock()

	o.logger.Info("navwatch: navigation detected", "from", prev, "to", newURL)
	o.em.emit(Event{CurrentURL: newURL, PreviousURL: prev, At: now})
}

// classAllowed re-checks the page-side filter: an added node counts only
// when its class contains one of the allow-list markers.
func classAllowed(class string, allow []string) bool {
	for _, marker := range allow {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}
