package navwatch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is a detected in-page navigation.
type Event struct {
	CurrentURL  string
	PreviousURL string
	At          time.Time
}

// Listener receives navigation events. Listeners run on the observer's
// goroutine; a slow listener delays later ones but never loses ordering.
type Listener func(Event)

// emitter is a typed listener set with the delivery guarantees the watcher
// depends on: registration order, and one listener's panic never reaches
// the others.
type emitter struct {
	mu        sync.Mutex
	listeners []Listener
	logger    *slog.Logger
}

func newEmitter(logger *slog.Logger) *emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &emitter{logger: logger}
}

func (e *emitter) subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	snapshot := make([]Listener, len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for i, l := range snapshot {
		e.deliver(i, l, ev)
	}
}

func (e *emitter) deliver(i int, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("navwatch: listener panicked",
				"listener", i, "url", ev.CurrentURL, "panic", fmt.Sprint(r))
		}
	}()
	l(ev)
}
