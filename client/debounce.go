package client

import (
	"sync"
	"time"
)

// DefaultQuietInterval is the debounce quiet period for durable saves.
const DefaultQuietInterval = 1500 * time.Millisecond

type debounceEntry struct {
	timer *time.Timer
	fn    func()
	gen   uint64
}

// Debouncer coalesces a burst of calls per key into a single delayed
// action. Scheduling replaces any pending action for the key and
// restarts the quiet interval from the most recent call; at most one
// timer is ever live per key, and the action that fires is always the
// latest one scheduled.
type Debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*debounceEntry
	gen     uint64
}

func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultQuietInterval
	}
	return &Debouncer{
		interval: interval,
		entries:  make(map[string]*debounceEntry),
	}
}

// Schedule cancels any pending action for key and arms a new one that
// fires after the quiet interval.
func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.timer.Stop()
	}
	d.gen++
	gen := d.gen
	e := &debounceEntry{fn: fn, gen: gen}
	e.timer = time.AfterFunc(d.interval, func() { d.fire(key, gen) })
	d.entries[key] = e
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if !ok || e.gen != gen {
		// Superseded by a newer schedule or cancelled.
		d.mu.Unlock()
		return
	}
	delete(d.entries, key)
	d.mu.Unlock()

	e.fn()
}

// Cancel drops the pending action for key, if any.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.timer.Stop()
		delete(d.entries, key)
	}
}

// Flush runs the pending action for key immediately, if any.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok {
		e.timer.Stop()
		delete(d.entries, key)
	}
	d.mu.Unlock()

	if ok {
		e.fn()
	}
}

// Pending reports whether an action is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key]
	return ok
}

// Stop cancels all pending actions.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.entries {
		e.timer.Stop()
		delete(d.entries, key)
	}
}
