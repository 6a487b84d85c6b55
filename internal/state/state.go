// Package state is the single-writer state container for one watched tab:
// navigation, detection, and UI state plus rolling performance counters.
// Every update flows through one apply path that snapshots the new state
// into a bounded history ring and notifies subscribers, so the rest of the
// system observes state instead of owning it.
package state

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playsense/storewatch/internal/classify"
	"github.com/playsense/storewatch/internal/extract"
)

// MaxRetries bounds automatic detection retries. Manual refresh is always
// allowed regardless.
const MaxRetries = 3

// UIStatus is the widget display state.
type UIStatus string

const (
	UINotDisplayed UIStatus = "not_displayed"
	UIInjecting    UIStatus = "injecting"
	UIDisplayed    UIStatus = "displayed"
	UIError        UIStatus = "error"
)

// NavigationState mirrors the navigation observer's view. Written only on
// the observer's callback path.
type NavigationState struct {
	CurrentURL  string `json:"current_url"`
	PreviousURL string `json:"previous_url,omitempty"`
	Navigating  bool   `json:"navigating"`
	LastNavAt   int64  `json:"last_nav_at,omitempty"` // epoch milliseconds
}

// DetectionState tracks the in-flight and last-known detection.
type DetectionState struct {
	InProgress   bool              `json:"in_progress"`
	Current      *extract.GameInfo `json:"current,omitempty"`
	Previous     *extract.GameInfo `json:"previous,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	Failures     int               `json:"failures"`
	RetryPending bool              `json:"retry_pending"`
}

// UIState tracks the injected widget.
type UIState struct {
	Status    UIStatus `json:"status"`
	LastError string   `json:"last_error,omitempty"`
	Theme     string   `json:"theme,omitempty"`
}

// Metrics are rolling performance counters, exposed through getState.
type Metrics struct {
	Detections         uint64  `json:"detections"`
	DetectionFailures  uint64  `json:"detection_failures"`
	Injections         uint64  `json:"injections"`
	InjectionFailures  uint64  `json:"injection_failures"`
	AvgDetectionMillis float64 `json:"avg_detection_ms"`
}

// Snapshot is an immutable copy of the full state at one point in time.
// GameInfo pointers are shared but never mutated after construction.
type Snapshot struct {
	Navigation NavigationState `json:"navigation"`
	Detection  DetectionState  `json:"detection"`
	UI         UIState         `json:"ui"`
	Metrics    Metrics         `json:"metrics"`
	Enabled    bool            `json:"enabled"`
	At         int64           `json:"at"` // epoch milliseconds
}

// Subscriber receives (new, previous) snapshots after every update.
type Subscriber func(next, prev Snapshot)

// Config for creating a Manager.
type Config struct {
	// HistoryDepth bounds the snapshot ring. Default: 10.
	HistoryDepth int
	// RetryBase is the backoff unit. Default: 1s.
	RetryBase time.Duration
	// RetryMax clamps any computed backoff. Default: 30s.
	RetryMax time.Duration
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = 10
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns Navigation/Detection/UI state exclusively.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	nav     NavigationState
	det     DetectionState
	ui      UIState
	metrics Metrics
	enabled bool
	history []Snapshot
	subs    []Subscriber

	retryTimer *time.Timer
	retryFn    func()
	cleanupFn  func()

	detectStart time.Time
	now         func() time.Time
}

// NewManager creates a Manager. The enabled flag starts true; the settings
// collaborator overrides it during startup.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger,
		enabled: true,
		ui:      UIState{Status: UINotDisplayed},
		now:     time.Now,
	}
}

// SetRetryFunc registers the callback invoked when a scheduled retry fires.
// The orchestrator points this at its detection entry point.
func (m *Manager) SetRetryFunc(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryFn = fn
}

// SetCleanupFunc registers the UI teardown callback used when the system is
// disabled. The manager holds only this non-owning hook; the widget node
// itself belongs to the injection coordinator.
func (m *Manager) SetCleanupFunc(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupFn = fn
}

// Subscribe registers a state subscriber. Subscriber panics are isolated.
func (m *Manager) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, s)
}

// Snapshot returns the current immutable state copy.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// History returns the snapshot ring, oldest first.
func (m *Manager) History() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// Enabled reports the feature flag.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// CurrentGame returns the current detection result, if any.
func (m *Manager) CurrentGame() *extract.GameInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.det.Current
}

// StartDetection marks a detection attempt in progress and cancels any
// pending retry.
func (m *Manager) StartDetection() {
	m.apply(func() {
		m.cancelRetryLocked()
		m.det.InProgress = true
		m.detectStart = m.now()
	})
}

// OnDetectionSuccess records a fresh result: failure count resets, the
// previous current game shifts down, and the rolling average updates.
func (m *Manager) OnDetectionSuccess(info *extract.GameInfo) {
	m.apply(func() {
		elapsed := float64(0)
		if !m.detectStart.IsZero() {
			elapsed = float64(m.now().Sub(m.detectStart).Milliseconds())
		}
		m.det.InProgress = false
		m.det.Failures = 0
		m.det.LastError = ""
		m.det.Previous = m.det.Current
		m.det.Current = info

		m.metrics.Detections++
		n := float64(m.metrics.Detections)
		m.metrics.AvgDetectionMillis += (elapsed - m.metrics.AvgDetectionMillis) / n
	})
}

// OnDetectionFailure records a failed attempt and schedules a backoff retry
// while under the retry budget: 1s, 2s, 4s, clamped at RetryMax. A fourth
// consecutive failure schedules nothing.
func (m *Manager) OnDetectionFailure(err error) {
	m.apply(func() {
		m.det.InProgress = false
		m.det.Failures++
		m.det.LastError = err.Error()
		m.metrics.DetectionFailures++

		if m.det.Failures > MaxRetries {
			return
		}
		delay := m.cfg.RetryBase << (m.det.Failures - 1)
		if delay > m.cfg.RetryMax {
			delay = m.cfg.RetryMax
		}
		m.scheduleRetryLocked(delay)
	})
}

// RetryDelay reports the backoff that a failure count produces. Exposed for
// the control surface's state report.
func (m *Manager) RetryDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := m.cfg.RetryBase << (failures - 1)
	if delay > m.cfg.RetryMax {
		delay = m.cfg.RetryMax
	}
	return delay
}

// OnNavigationChange resets detection and UI state for the new page. The
// current game survives only a same-identifier URL change (query-string
// tweaks must not discard it).
func (m *Manager) OnNavigationChange(currentURL, previousURL string, at time.Time) {
	m.apply(func() {
		m.nav.PreviousURL = m.nav.CurrentURL
		m.nav.CurrentURL = currentURL
		m.nav.Navigating = true
		m.nav.LastNavAt = at.UnixMilli()

		m.cancelRetryLocked()
		m.det.InProgress = false
		m.det.Failures = 0
		m.det.LastError = ""

		newID, newOK := classify.AppID(currentURL)
		oldID, oldOK := classify.AppID(previousURL)
		if !newOK || !oldOK || newID != oldID {
			m.det.Previous = m.det.Current
			m.det.Current = nil
		}

		m.ui = UIState{Status: UINotDisplayed, Theme: m.ui.Theme}
	})
}

// SetNavigationSettled clears the navigating flag after the settle window.
func (m *Manager) SetNavigationSettled() {
	m.apply(func() {
		m.nav.Navigating = false
	})
}

// SetEnabled flips the feature flag; disabling forces UI cleanup through
// the registered hook.
func (m *Manager) SetEnabled(enabled bool) {
	var cleanup func()
	m.apply(func() {
		m.enabled = enabled
		if !enabled {
			m.cancelRetryLocked()
			cleanup = m.cleanupFn
			m.ui = UIState{Status: UINotDisplayed, Theme: m.ui.Theme}
		}
	})
	if cleanup != nil {
		cleanup()
	}
}

// SetUIStatus records a widget display transition.
func (m *Manager) SetUIStatus(status UIStatus, lastError string) {
	m.apply(func() {
		m.ui.Status = status
		m.ui.LastError = lastError
	})
}

// SetUITheme records the widget theme in effect. The theme survives
// navigation resets; it is a startup-time choice, not per-page state.
func (m *Manager) SetUITheme(theme string) {
	m.apply(func() {
		m.ui.Theme = theme
	})
}

// RecordInjection bumps the injection counters.
func (m *Manager) RecordInjection(ok bool) {
	m.apply(func() {
		if ok {
			m.metrics.Injections++
		} else {
			m.metrics.InjectionFailures++
		}
	})
}

// Destroy cancels timers. The manager holds no other resources.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRetryLocked()
}

// apply is the single update path: mutate under lock, snapshot, ring,
// notify. Subscriber panics are logged per subscriber and never propagate.
func (m *Manager) apply(mut func()) {
	m.mu.Lock()
	prev := m.snapshotLocked()
	mut()
	next := m.snapshotLocked()

	m.history = append(m.history, next)
	if len(m.history) > m.cfg.HistoryDepth {
		m.history = m.history[len(m.history)-m.cfg.HistoryDepth:]
	}

	subs := make([]Subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for i, s := range subs {
		m.notify(i, s, next, prev)
	}
}

func (m *Manager) notify(i int, s Subscriber, next, prev Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state: subscriber panicked", "subscriber", i, "panic", fmt.Sprint(r))
		}
	}()
	s(next, prev)
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Navigation: m.nav,
		Detection:  m.det,
		UI:         m.ui,
		Metrics:    m.metrics,
		Enabled:    m.enabled,
		At:         m.now().UnixMilli(),
	}
	return snap
}

func (m *Manager) scheduleRetryLocked(delay time.Duration) {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.det.RetryPending = true
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		fn := m.retryFn
		pending := m.det.RetryPending
		m.det.RetryPending = false
		m.retryTimer = nil
		m.mu.Unlock()
		if pending && fn != nil {
			fn()
		}
	})
	m.logger.Debug("state: retry scheduled", "failures", m.det.Failures, "delay", delay)
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.det.RetryPending = false
}
