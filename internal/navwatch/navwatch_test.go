package navwatch

import (
	"log/slog"
	"testing"
	"time"
)

func TestDebouncerBatchCap(t *testing.T) {
	var got [][]Mutation
	d := newDebouncer(debounceConfig{Window: time.Hour, BatchCap: 3}, func(batch []Mutation) {
		got = append(got, batch)
	})

	for i := 0; i < 10; i++ {
		d.add(Mutation{Class: "apphub_AppName"})
	}
	if n := d.flush(); n != 3 {
		t.Errorf("flush = %d records, want 3 (excess dropped, not queued)", n)
	}
	if len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("batches = %v", got)
	}

	// A second flush with nothing buffered is a no-op.
	if n := d.flush(); n != 0 {
		t.Errorf("empty flush = %d", n)
	}
}

func TestDebouncerTimerRearms(t *testing.T) {
	d := newDebouncer(debounceConfig{Window: 20 * time.Millisecond, BatchCap: 50}, func([]Mutation) {})

	if d.timerC() != nil {
		t.Fatal("idle debouncer must have no pending timer")
	}
	d.add(Mutation{})
	if d.timerC() == nil {
		t.Fatal("timer must arm on add")
	}
	select {
	case <-d.timerC():
	case <-time.After(time.Second):
		t.Fatal("window timer never fired")
	}
	d.flush()
	if d.timerC() != nil {
		t.Fatal("flush must disarm the timer")
	}
}

func TestEmitterOrderAndIsolation(t *testing.T) {
	em := newEmitter(slog.Default())

	var order []int
	em.subscribe(func(Event) { order = append(order, 1) })
	em.subscribe(func(Event) {
		order = append(order, 2)
		panic("listener blew up")
	})
	em.subscribe(func(Event) { order = append(order, 3) })

	em.emit(Event{CurrentURL: "https://store.steampowered.com/app/620/"})

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHandleURL(t *testing.T) {
	o := New(Config{SettleDelay: 30 * time.Millisecond})
	o.currentURL = "https://store.steampowered.com/app/620/"

	var events []Event
	o.OnNavigation(func(ev Event) { events = append(events, ev) })

	// Same URL: no event.
	o.handleURL("https://store.steampowered.com/app/620/")
	if len(events) != 0 {
		t.Fatalf("events = %v, want none for same URL", events)
	}
	if o.Navigating() {
		t.Fatal("navigating must stay false without a change")
	}

	o.handleURL("https://store.steampowered.com/app/440/")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.PreviousURL != "https://store.steampowered.com/app/620/" ||
		ev.CurrentURL != "https://store.steampowered.com/app/440/" {
		t.Errorf("event = %+v", ev)
	}
	if ev.At.IsZero() {
		t.Error("event timestamp not set")
	}
	if !o.Navigating() {
		t.Error("navigating flag must be up inside the settle window")
	}

	time.Sleep(60 * time.Millisecond)
	if o.Navigating() {
		t.Error("navigating flag must clear after the settle window")
	}
	if o.CurrentURL() != "https://store.steampowered.com/app/440/" {
		t.Errorf("CurrentURL = %q", o.CurrentURL())
	}
}

func TestStopWithoutStart(t *testing.T) {
	o := New(Config{})
	// Must not panic: Stop on a never-started observer has nothing to cancel.
	o.Stop()
	o.Stop()
}

func TestClassAllowed(t *testing.T) {
	allow := []string{"apphub_", "game_area_"}
	cases := []struct {
		class string
		want  bool
	}{
		{"apphub_AppName", true},
		{"game_area_purchase", true},
		{"btn_addtocart", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := classAllowed(tc.class, allow); got != tc.want {
			t.Errorf("classAllowed(%q) = %v, want %v", tc.class, got, tc.want)
		}
	}
}
