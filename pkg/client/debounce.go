package client

import (
	"sync"
	"time"
)

// debouncer holds one cancellable timer per toggle kind. A new trigger
// replaces the pending one and restarts the window, so a rapid toggle storm
// produces exactly one applied transition reflecting the final state.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timers map[string]*time.Timer
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) Trigger(kind string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[kind]; ok {
		t.Stop()
	}
	d.timers[kind] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, kind)
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels everything pending.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}
