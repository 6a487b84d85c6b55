package navwatch

import "time"

// Mutation is one allow-listed DOM mutation signal forwarded by the injected
// observer. Only the class attribute survives the trip: the watcher needs to
// know that game content changed, not what it changed to.
type Mutation struct {
	Class string
	At    time.Time
}

type debounceConfig struct {
	// Window is the quiet period before a batch is inspected. Default: 150ms.
	Window time.Duration
	// BatchCap bounds one processing pass. Records past the cap are dropped,
	// not queued: a storm of host-page churn must not build a backlog.
	BatchCap int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 150 * time.Millisecond
	}
	if dc.BatchCap <= 0 {
		dc.BatchCap = 50
	}
}

// debouncer batches mutation signals and hands them to flushFn when the
// window expires.
type debouncer struct {
	cfg     debounceConfig
	records []Mutation
	dropped int
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]Mutation)
}

func newDebouncer(cfg debounceConfig, flushFn func([]Mutation)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		records: make([]Mutation, 0, cfg.BatchCap),
		flushFn: flushFn,
	}
}

// add buffers a mutation. Past the cap the record is dropped; the timer
// still (re)arms so the surviving batch flushes.
func (d *debouncer) add(m Mutation) {
	if len(d.records) < d.cfg.BatchCap {
		d.records = append(d.records, m)
	} else {
		d.dropped++
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
}

// timerC fires when the debounce window expires. Nil while idle.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush emits the buffered batch and resets. Returns the number of records
// flushed.
func (d *debouncer) flush() int {
	n := len(d.records)
	if n == 0 {
		return 0
	}

	batch := make([]Mutation, n)
	copy(batch, d.records)
	d.flushFn(batch)

	d.records = d.records[:0]
	d.dropped = 0
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	return n
}
