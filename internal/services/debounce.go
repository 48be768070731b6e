package services

import (
	"sync"
	"time"
)

const DefaultDebounceWindow = 500 * time.Millisecond

type stopper interface {
	Stop() bool
}

// Debouncer runs the most recently scheduled func once no new call has
// arrived for the window. Scheduling again replaces the pending func and
// restarts the window.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	after   func(d time.Duration, f func()) stopper
	timer   stopper
	pending func()
	gen     uint64
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window: window,
		after:  func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = d.after(d.window, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

// Flush runs the pending func immediately on the calling goroutine.
// It reports whether anything was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.takeLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Stop drops the pending func without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.takeLocked()
	d.mu.Unlock()
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) takeLocked() func() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	fn := d.pending
	d.pending = nil
	return fn
}
