// Package storewatch watches one browser tab on the known game storefront
// and community hosts, detects which game the page shows, fetches playtime
// statistics for it, and injects a small widget next to the page's own
// metadata. It observes a tab the user drives; it never navigates on its
// own after startup.
package storewatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/playsense/storewatch/internal/backend"
	"github.com/playsense/storewatch/internal/browser"
	"github.com/playsense/storewatch/internal/classify"
	"github.com/playsense/storewatch/internal/config"
	"github.com/playsense/storewatch/internal/domcache"
	"github.com/playsense/storewatch/internal/extract"
	"github.com/playsense/storewatch/internal/fault"
	"github.com/playsense/storewatch/internal/navwatch"
	"github.com/playsense/storewatch/internal/settings"
	"github.com/playsense/storewatch/internal/state"
	"github.com/playsense/storewatch/internal/widget"
)

// Watcher is the top-level orchestrator. It owns the browser, the tab, the
// navigation observer and every collaborator below them. Create one per
// process; there are no package-level instances.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger

	mgr     *browser.Manager
	tab     *browser.Tab
	nav     *navwatch.Observer
	st      *state.Manager
	box     *widget.Coordinator
	client  *backend.Client
	store   *settings.Store
	elems   *domcache.ElementCache[*rod.Element]
	results *domcache.ResultCache

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	detecting     bool
	pendingRerun  bool
	pendingBypass bool
}

// New creates a Watcher from configuration. Nothing starts until Start.
func New(cfg *config.Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		cfg:    cfg,
		logger: logger,
		// Replaced by Start; keeps pre-start calls from carrying a nil context.
		ctx: context.Background(),
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Headless:         cfg.Browser.Headless,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		}),
		st: state.NewManager(state.Config{Logger: logger}),
		client: backend.NewClient(backend.Config{
			BaseURL:  cfg.Backend.URL,
			Timeout:  cfg.Backend.Timeout,
			RetryMax: cfg.Backend.RetryMax,
			Logger:   logger,
		}),
		results: domcache.NewResultCache(),
	}
}

// State exposes the state manager for the control surface.
func (w *Watcher) State() *state.Manager {
	return w.st
}

// Start launches or attaches the browser, installs the navigation observer
// and kicks off the first detection.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	store, err := settings.Open(w.cfg.Settings.Path)
	if err != nil {
		return fmt.Errorf("storewatch: open settings: %w", err)
	}
	w.store = store

	enabled, err := store.Enabled()
	if err != nil {
		w.logger.Warn("storewatch: read enabled flag", "error", err)
		enabled = true
	}
	w.st.SetEnabled(enabled)

	if _, err := w.mgr.Start(w.ctx); err != nil {
		return fmt.Errorf("storewatch: start browser: %w", err)
	}

	if w.cfg.Watch.Attach {
		w.tab, err = browser.Attach(w.ctx, w.mgr, classify.IsCandidatePage)
	} else {
		if w.cfg.Watch.URL == "" {
			return errors.New("storewatch: watch.url required when not attaching")
		}
		w.tab, err = browser.Open(w.ctx, w.mgr, w.cfg.Watch.URL)
	}
	if err != nil {
		return err
	}

	// Config wins over the persisted theme; both may be empty.
	theme := w.cfg.Widget.Theme
	if theme == "" {
		if t, terr := store.Theme(); terr == nil {
			theme = t
		}
	}
	w.st.SetUITheme(theme)

	w.elems = domcache.NewElementCache(w.tab.Element, w.tab.Attached)
	w.box = widget.New(widget.Config{
		Tab:     w.tab,
		Anchors: mergeAnchors(w.cfg.Widget.Anchors),
		Cache:   w.elems,
		Theme:   theme,
		Logger:  w.logger,
	})
	if w.cfg.Widget.AutoReinject {
		w.box.StartAutoReinject(w.ctx)
	}

	w.st.SetRetryFunc(func() { go w.safeDetect("retry", false) })
	w.st.SetCleanupFunc(func() { w.box.Cleanup(w.ctx) })

	w.nav = navwatch.New(navwatch.Config{
		Tab:            w.tab,
		DebounceWindow: w.cfg.Debounce.Window,
		BatchCap:       w.cfg.Debounce.MaxBuffer,
		SettleDelay:    w.cfg.Watch.SettleDelay,
		Logger:         w.logger,
	})
	w.nav.OnNavigation(w.handleNavigation)
	if err := w.nav.Start(w.ctx); err != nil {
		return fmt.Errorf("storewatch: start navigation observer: %w", err)
	}

	w.logger.Info("storewatch: watching tab", "url", w.tab.PageURL, "enabled", enabled)
	go w.safeDetect("startup", false)
	return nil
}

// Stop tears everything down in reverse order of Start.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.nav != nil {
		w.nav.Stop()
	}
	if w.box != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		w.box.Destroy(ctx)
		cancel()
	}
	if w.tab != nil {
		if err := w.tab.Close(); err != nil {
			w.logger.Warn("storewatch: close tab", "error", err)
		}
	}
	if err := w.mgr.Close(); err != nil {
		w.logger.Warn("storewatch: close browser", "error", err)
	}
	if w.store != nil {
		w.store.Close()
	}
	w.st.Destroy()
}

// Refresh forces a fresh detection, bypassing the result cache, and reports
// its outcome. This is the manual path; it runs even when the automatic
// retry budget is spent.
func (w *Watcher) Refresh() error {
	return w.safeDetect("manual refresh", true)
}

// SetEnabled flips the feature flag, persists it, and acts on the change.
func (w *Watcher) SetEnabled(enabled bool) error {
	w.st.SetEnabled(enabled)
	if err := w.store.SetEnabled(enabled); err != nil {
		return err
	}
	if enabled {
		go w.safeDetect("re-enabled", true)
	}
	return nil
}

// handleNavigation runs on every in-page navigation. DOM references minted
// for the old content are dead, so the element cache drops wholesale.
func (w *Watcher) handleNavigation(ev navwatch.Event) {
	w.st.OnNavigationChange(ev.CurrentURL, ev.PreviousURL, ev.At)
	w.elems.Invalidate()
	w.box.Cleanup(w.ctx)

	// A full document load wipes the injected hooks; reinstalling is safe
	// either way because the script guards against double entry.
	if err := w.nav.Reinject(); err != nil {
		w.logger.Debug("storewatch: reinject hooks", "error", err)
	}

	time.AfterFunc(w.cfg.Watch.SettleDelay, func() {
		w.st.SetNavigationSettled()
		w.safeDetect("navigation", false)
	})
}

// safeDetect is the only entry into the detection pipeline. It serialises
// concurrent triggers, recovers panics, and forwards unexpected failures to
// the reporter without letting them near the caller.
func (w *Watcher) safeDetect(reason string, bypassCache bool) (err error) {
	if !w.beginDetect(bypassCache) {
		w.logger.Debug("storewatch: detection already running, rerun queued", "reason", reason)
		return nil
	}
	defer func() {
		if rerun, bypass := w.endDetect(); rerun {
			go w.safeDetect("queued rerun", bypass)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fault.Unknown(fmt.Errorf("detection panic: %v", r))
			w.logger.Error("storewatch: detection panicked", "reason", reason, "panic", r)
			w.st.OnDetectionFailure(err)
			url := ""
			if w.nav != nil {
				url = w.nav.CurrentURL()
			}
			w.client.ReportError(w.ctx, backend.ErrorReport{
				Message: err.Error(),
				Kind:    string(fault.KindUnknown),
				URL:     url,
			})
		}
	}()

	if err = w.detect(w.ctx, reason, bypassCache); err != nil {
		if fault.IsKind(err, fault.KindNotCandidatePage) {
			// Expected short-circuit off the supported hosts; not a failure.
			w.logger.Debug("storewatch: skipped page", "reason", reason, "error", err)
		} else {
			w.logger.Warn("storewatch: detection failed",
				"reason", reason, "kind", fault.KindOf(err), "error", err)
		}
	}
	return err
}

// beginDetect claims the detection slot. When a run is already in flight the
// trigger is not lost: it is queued as a single rerun for when the current
// run finishes, sticky on the cache-bypass flag.
func (w *Watcher) beginDetect(bypassCache bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detecting {
		w.pendingRerun = true
		w.pendingBypass = w.pendingBypass || bypassCache
		return false
	}
	w.detecting = true
	return true
}

// endDetect releases the slot and reports whether a trigger arrived during
// the run, along with its cache mode.
func (w *Watcher) endDetect() (rerun, bypassCache bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detecting = false
	rerun, bypassCache = w.pendingRerun, w.pendingBypass
	w.pendingRerun, w.pendingBypass = false, false
	return rerun, bypassCache
}

// detect runs the linear pipeline: candidate check, stability wait,
// snapshot, extraction, backend fetch, staleness check, injection.
func (w *Watcher) detect(ctx context.Context, reason string, bypassCache bool) error {
	if !w.st.Enabled() {
		return nil
	}

	url, err := w.tab.CurrentURL(ctx)
	if err != nil {
		return fault.Wrap(fault.KindPageNotReady, "read current url", err)
	}
	if !classify.IsCandidatePage(url) {
		w.box.Cleanup(ctx)
		return fault.NotCandidatePage(url)
	}

	w.st.StartDetection()

	info, err := w.resolveGame(ctx, url, bypassCache)
	if err != nil {
		w.st.OnDetectionFailure(err)
		// A widget the user can already see must not keep stale data up.
		if msg, show := errorDisplay(w.st.Snapshot().UI.Status, err); show {
			w.box.ShowError(ctx, msg)
			w.st.SetUIStatus(state.UIError, err.Error())
		}
		return err
	}
	w.st.OnDetectionSuccess(info)
	w.logger.Info("storewatch: game detected",
		"title", info.Title, "app_id", info.AppID,
		"method", info.Method, "confidence", info.Confidence, "reason", reason)

	return w.present(ctx, info)
}

// resolveGame produces a GameInfo for url, from the result cache when
// allowed, otherwise by snapshotting and extracting.
func (w *Watcher) resolveGame(ctx context.Context, url string, bypassCache bool) (*extract.GameInfo, error) {
	if !bypassCache {
		if cached, ok := w.results.Get(url); ok {
			w.logger.Debug("storewatch: result cache hit", "url", url)
			return cached, nil
		}
	}

	if !w.tab.WaitStable(ctx, anchorSelectors(), w.cfg.Watch.StabilityTimeout) {
		// Proceed anyway: a partial DOM often still carries the title.
		w.logger.Debug("storewatch: stability wait ran out",
			"url", url, "error", fault.PageNotReady(url))
	}

	info, err := w.snapshotAndExtract(ctx, url)
	if err != nil && w.cfg.Watch.Aggressive && fault.KindOf(err) != fault.KindNotCandidatePage {
		// Late-loading pages: give the primary selectors one more chance,
		// then extract from a second snapshot.
		w.tab.WaitForSelector(ctx, "#appHubAppName, .apphub_AppName", 2*time.Second)
		info, err = w.snapshotAndExtract(ctx, url)
	}
	if err != nil {
		return nil, err
	}

	w.results.Set(url, info)
	return info, nil
}

func (w *Watcher) snapshotAndExtract(ctx context.Context, url string) (*extract.GameInfo, error) {
	html, err := w.tab.SnapshotHTML(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindPageNotReady, "snapshot page", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fault.Wrap(fault.KindPageNotReady, "parse snapshot", err)
	}
	return extract.Detect(url, doc)
}

// present fetches stats for info and renders the widget. A navigation that
// lands on a different game while the fetch is in flight makes the response
// stale; it is dropped rather than rendered on the wrong page.
func (w *Watcher) present(ctx context.Context, info *extract.GameInfo) error {
	w.st.SetUIStatus(state.UIInjecting, "")
	w.box.ShowLoading(ctx)

	data, err := w.client.FetchData(ctx, info.Title, info.AppID, string(info.PageType))
	if err != nil {
		w.box.ShowError(ctx, userMessage(err))
		w.st.SetUIStatus(state.UIError, err.Error())
		return err
	}

	if cur, curErr := w.tab.CurrentURL(ctx); curErr == nil {
		if curID, ok := classify.AppID(cur); ok && curID != info.AppID {
			w.logger.Info("storewatch: dropping stale response",
				"fetched_for", info.AppID, "now_on", curID)
			return nil
		}
	}

	ok := w.box.Inject(ctx, widgetData(info, data))
	w.st.RecordInjection(ok)
	if !ok {
		w.st.SetUIStatus(state.UIError, "no usable anchor point")
		return fault.NoInjectionPoint()
	}
	w.st.SetUIStatus(state.UIDisplayed, "")
	return nil
}

// errorDisplay decides whether a failed detection surfaces in the widget.
// Only a widget already on the page flips to the error state; a page with no
// widget stays clean.
func errorDisplay(status state.UIStatus, err error) (string, bool) {
	switch status {
	case state.UIDisplayed, state.UIInjecting, state.UIError:
		return userMessage(err), true
	default:
		return "", false
	}
}

// userMessage maps an error onto the widget-facing message.
func userMessage(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.UserMessage != "" {
		return fe.UserMessage
	}
	return "Something went wrong. Try refreshing the page."
}

// widgetData maps a detection and its stats onto the widget payload. A nil
// GameData renders the no-data state.
func widgetData(info *extract.GameInfo, data *backend.GameData) *widget.Data {
	d := &widget.Data{
		AppID:      info.AppID,
		PageType:   string(info.PageType),
		Source:     string(info.Method),
		Confidence: info.Confidence,
	}
	if data == nil {
		return d
	}
	d.Title = data.Title
	if d.Title == "" {
		d.Title = info.Title
	}
	d.Rows = []widget.Row{
		{Label: "Main Story", Value: data.MainStory},
		{Label: "Main + Extra", Value: data.MainPlusExtra},
		{Label: "Completionist", Value: data.Completionist},
	}
	d.DetailURL = data.DetailURL
	return d
}

// anchorSelectors are the "page has real content" markers the stability
// wait polls for.
func anchorSelectors() []string {
	return []string{
		".apphub_AppName",
		"#appHubAppName",
		".game_area_purchase",
		".breadcrumbs",
	}
}

// mergeAnchors combines built-in anchor points with user-configured ones.
func mergeAnchors(custom []config.AnchorConfig) []widget.AnchorPoint {
	anchors := widget.DefaultAnchors()
	for _, a := range custom {
		if a.Selector == "" {
			continue
		}
		placement := widget.Placement(a.Placement)
		switch placement {
		case widget.PlaceBefore, widget.PlaceAfter, widget.PlacePrepend, widget.PlaceAppend:
		default:
			placement = widget.PlaceAfter
		}
		anchors = append(anchors, widget.AnchorPoint{
			Selector:  a.Selector,
			Priority:  a.Priority,
			Placement: placement,
		})
	}
	return anchors
}
