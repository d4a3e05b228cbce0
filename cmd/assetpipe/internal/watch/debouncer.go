// Package watch re-imports assets when their source files change.
package watch

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MaxPending is the number of pending paths that forces an immediate flush.
const MaxPending = 1000

// Debouncer coalesces bursts of change events into one batch of paths.
// A flush happens once the window passes with no new event.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *clock.Timer
	clock   clock.Clock
	window  time.Duration
	onFlush func(paths []string)
	stopped bool
}

// NewDebouncer creates a debouncer on the wall clock.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return NewDebouncerWithClock(clock.New(), window, onFlush)
}

// NewDebouncerWithClock creates a debouncer driven by c. onFlush receives
// the sorted set of paths added since the previous flush.
func NewDebouncerWithClock(c clock.Clock, window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		clock:   c,
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a changed path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[path] = struct{}{}

	if len(d.pending) >= MaxPending {
		d.stopTimerLocked()
		paths := d.takeLocked()
		d.mu.Unlock()
		d.deliver(paths)
		return
	}

	// A timer that already fired finds nothing pending after a flush.
	d.stopTimerLocked()
	d.timer = d.clock.AfterFunc(d.window, d.FlushNow)
	d.mu.Unlock()
}

// FlushNow delivers pending paths without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	d.stopTimerLocked()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	paths := d.takeLocked()
	d.mu.Unlock()
	d.deliver(paths)
}

// Stop stops the debouncer and delivers what is pending.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.stopTimerLocked()
	paths := d.takeLocked()
	d.mu.Unlock()
	d.deliver(paths)
}

// PendingCount returns the number of paths waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) takeLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	slices.Sort(paths)
	return paths
}

// deliver runs the callback outside the lock.
func (d *Debouncer) deliver(paths []string) {
	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}
