// Package widget injects and maintains the informational box on the host
// page. The coordinator picks an anchor element by priority, renders through
// an embedded script that only ever assigns textContent, and optionally
// re-injects when the host page tears the container out during a content
// swap.
package widget

import (
	"context"
	_ "embed"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/playsense/storewatch/internal/browser"
	"github.com/playsense/storewatch/internal/domcache"
	"github.com/playsense/storewatch/internal/idgen"
)

//go:embed widget.js
var renderJS []byte

const removeJS = `(id) => {
	const box = document.getElementById(id);
	if (box && box.parentNode) box.parentNode.removeChild(box);
	return true;
}`

const presentJS = `(id) => document.getElementById(id) !== null`

// Render states. Exactly one is active at a time.
const (
	stateLoading = "loading"
	stateSuccess = "success"
	stateError   = "error"
	stateNoData  = "no_data"
)

// Placement positions the widget relative to its anchor.
type Placement string

const (
	PlaceBefore  Placement = "before"
	PlaceAfter   Placement = "after"
	PlacePrepend Placement = "prepend"
	PlaceAppend  Placement = "append"
)

// AnchorPoint is one candidate insertion site. Lower Priority wins; the
// Predicate, when set, can veto an otherwise matching element.
type AnchorPoint struct {
	Selector  string
	Priority  int
	Placement Placement
	Predicate func(el *rod.Element) bool
}

// DefaultAnchors are the known-good insertion sites on the host pages,
// store page first, community hub second, generic fallbacks last.
func DefaultAnchors() []AnchorPoint {
	return []AnchorPoint{
		{Selector: ".game_meta_data", Priority: 10, Placement: PlacePrepend},
		{Selector: "#appHubAppName", Priority: 20, Placement: PlaceAfter},
		{Selector: ".apphub_HomeHeaderContent", Priority: 30, Placement: PlaceAppend},
		{Selector: ".page_title_area", Priority: 40, Placement: PlaceAfter},
		{Selector: ".breadcrumbs", Priority: 50, Placement: PlaceAfter},
	}
}

// Row is one label/value line in the rendered widget. Empty values render
// as an em dash placeholder on the page side.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Data is everything the success state renders, plus the container's
// data attributes.
type Data struct {
	AppID      string
	Title      string
	PageType   string
	Source     string
	Confidence float64
	Rows       []Row
	// DetailURL links to the full completion-time listing. Rendered as an
	// anchor element; only http(s) URLs get an href.
	DetailURL string
}

// Config for creating a Coordinator.
type Config struct {
	Tab *browser.Tab
	// Anchors defaults to DefaultAnchors; custom points are merged by the
	// caller before construction.
	Anchors []AnchorPoint
	// Cache is the shared element cache; nil means direct lookups.
	Cache *domcache.ElementCache[*rod.Element]
	// IDs mints the container element ID.
	IDs idgen.Generator
	// ReinjectAttempts bounds the auto-reinject watcher. Default: 3.
	ReinjectAttempts int
	// ReinjectInterval is the container presence poll period. Default: 1s.
	ReinjectInterval time.Duration
	// Theme is written to the container's data-theme attribute so the host
	// page's stylesheet can pick it up. Empty means no attribute.
	Theme  string
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Anchors) == 0 {
		c.Anchors = DefaultAnchors()
	}
	if c.IDs == nil {
		c.IDs = idgen.Default
	}
	if c.ReinjectAttempts <= 0 {
		c.ReinjectAttempts = 3
	}
	if c.ReinjectInterval <= 0 {
		c.ReinjectInterval = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Coordinator owns the widget lifecycle on one tab.
type Coordinator struct {
	tab     *browser.Tab
	cfg     Config
	logger  *slog.Logger
	anchors []AnchorPoint

	mu          sync.Mutex
	containerID string
	injected    bool
	lastData    *Data
	lastErrMsg  string
	reinjects   int
	watchCancel context.CancelFunc
}

// New creates a Coordinator. Nothing touches the page until the first
// Inject or ShowLoading call.
func New(cfg Config) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		tab:         cfg.Tab,
		cfg:         cfg,
		logger:      cfg.Logger,
		anchors:     orderAnchors(cfg.Anchors),
		containerID: "storewatch-" + cfg.IDs(),
	}
}

// ContainerID returns the DOM id the widget renders under.
func (c *Coordinator) ContainerID() string {
	return c.containerID
}

// Inject renders the success state near the best available anchor. All
// failures collapse to false: a missing anchor or a rejected eval is logged,
// never propagated, because the page outlives any one injection attempt.
func (c *Coordinator) Inject(ctx context.Context, data *Data) bool {
	c.mu.Lock()
	c.lastData = data
	c.mu.Unlock()

	renderState := stateSuccess
	if data == nil || (data.Title == "" && len(data.Rows) == 0) {
		renderState = stateNoData
	}
	ok := c.render(ctx, renderState)
	c.mu.Lock()
	c.injected = ok
	if ok {
		c.reinjects = 0
	}
	c.mu.Unlock()
	return ok
}

// Update re-renders the current container with new data. Falls back to a
// full Inject when the widget is not on the page yet.
func (c *Coordinator) Update(ctx context.Context, data *Data) bool {
	c.mu.Lock()
	injected := c.injected
	c.mu.Unlock()
	if !injected {
		return c.Inject(ctx, data)
	}
	c.mu.Lock()
	c.lastData = data
	c.mu.Unlock()
	return c.render(ctx, stateSuccess)
}

// ShowLoading renders the loading placeholder.
func (c *Coordinator) ShowLoading(ctx context.Context) bool {
	ok := c.render(ctx, stateLoading)
	c.mu.Lock()
	c.injected = ok
	c.mu.Unlock()
	return ok
}

// ShowError renders a user-facing failure message.
func (c *Coordinator) ShowError(ctx context.Context, msg string) bool {
	c.mu.Lock()
	c.lastErrMsg = msg
	c.mu.Unlock()
	ok := c.render(ctx, stateError)
	c.mu.Lock()
	c.injected = ok
	c.mu.Unlock()
	return ok
}

// Cleanup removes the container from the page. Safe to call repeatedly and
// when the container is already gone.
func (c *Coordinator) Cleanup(ctx context.Context) {
	c.mu.Lock()
	c.injected = false
	c.lastData = nil
	c.mu.Unlock()

	if _, err := c.tab.Eval(ctx, removeJS, c.containerID); err != nil {
		c.logger.Debug("widget: cleanup eval failed", "error", err)
	}
}

// Destroy stops the reinject watcher and removes the widget.
func (c *Coordinator) Destroy(ctx context.Context) {
	c.mu.Lock()
	cancel := c.watchCancel
	c.watchCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.Cleanup(ctx)
}

// StartAutoReinject watches container presence and re-renders the last data
// when the host page removes the widget, up to the configured attempt
// budget, after which the watcher goes quiet until the next Inject.
func (c *Coordinator) StartAutoReinject(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.watchCancel != nil {
		c.watchCancel()
	}
	c.watchCancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.ReinjectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				c.maybeReinject(watchCtx)
			}
		}
	}()
}

func (c *Coordinator) maybeReinject(ctx context.Context) {
	c.mu.Lock()
	injected := c.injected
	data := c.lastData
	budget := c.reinjects < c.cfg.ReinjectAttempts
	c.mu.Unlock()

	if !injected || data == nil || !budget {
		return
	}

	res, err := c.tab.Eval(ctx, presentJS, c.containerID)
	if err != nil || res.Value.Bool() {
		return
	}

	c.mu.Lock()
	c.reinjects++
	attempt := c.reinjects
	c.mu.Unlock()

	c.logger.Info("widget: container removed by host page, re-injecting",
		"attempt", attempt, "max", c.cfg.ReinjectAttempts)
	if !c.render(ctx, stateSuccess) {
		c.logger.Warn("widget: re-injection failed", "attempt", attempt)
	}
}

// render drives the embedded script against the chosen anchor.
func (c *Coordinator) render(ctx context.Context, renderState string) bool {
	el, placement, ok := c.findAnchor()
	if !ok {
		c.logger.Warn("widget: no usable anchor point")
		return false
	}

	cfg := map[string]any{
		"id":        c.containerID,
		"placement": string(placement),
		"state":     renderState,
		"theme":     c.cfg.Theme,
	}
	c.mu.Lock()
	payload := buildPayload(c.lastData, c.lastErrMsg)
	c.mu.Unlock()

	res, err := el.Eval(string(renderJS), cfg, payload)
	if err != nil {
		c.logger.Warn("widget: render eval failed", "state", renderState, "error", err)
		return false
	}
	return res.Value.Get("ok").Bool()
}

// findAnchor walks the priority-ordered anchor list and returns the first
// attached, visible, predicate-passing element.
func (c *Coordinator) findAnchor() (*rod.Element, Placement, bool) {
	for _, a := range c.anchors {
		el, ok := c.lookup(a.Selector)
		if !ok {
			continue
		}
		if !c.tab.Visible(el) {
			continue
		}
		if a.Predicate != nil && !a.Predicate(el) {
			continue
		}
		return el, a.Placement, true
	}
	return nil, "", false
}

func (c *Coordinator) lookup(selector string) (*rod.Element, bool) {
	if c.cfg.Cache != nil {
		return c.cfg.Cache.Get(selector)
	}
	return c.tab.Element(selector)
}

// buildPayload maps Data onto the script's payload shape. The confidence
// attribute carries two decimals, enough for debugging selectors in
// devtools without implying precision the scorer does not have.
func buildPayload(data *Data, errMsg string) map[string]any {
	payload := map[string]any{
		"message": errMsg,
	}
	if data == nil {
		return payload
	}
	payload["appId"] = data.AppID
	payload["title"] = data.Title
	payload["pageType"] = data.PageType
	payload["source"] = data.Source
	payload["confidence"] = strconv.FormatFloat(data.Confidence, 'f', 2, 64)
	payload["rows"] = data.Rows
	payload["detailUrl"] = data.DetailURL
	return payload
}

// orderAnchors sorts by priority, stable, without mutating the input.
func orderAnchors(in []AnchorPoint) []AnchorPoint {
	out := make([]AnchorPoint, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
