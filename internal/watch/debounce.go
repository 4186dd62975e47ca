package watch

import (
	"sync"
	"time"
)

// debouncer coalesces a burst of filesystem events into a single trigger
// signal, emitted window after the last event was seen. Adapted from the
// per-path event coalescer used for live reindexing elsewhere in this
// codebase's ancestry: since every triggered rebuild re-scans all sources
// and diffs against the manifest, there is nothing to coalesce per-path --
// any event anywhere under a watched root collapses to "rebuild".
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	output  chan struct{}
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		output: make(chan struct{}, 1),
	}
}

// signal records an event and (re)schedules a flush window after from now.
func (d *debouncer) signal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || !d.pending {
		return
	}
	d.pending = false
	select {
	case d.output <- struct{}{}:
	default:
		// a trigger is already queued; the pending rebuild will cover this one too.
	}
}

// triggers returns the channel of rebuild signals.
func (d *debouncer) triggers() <-chan struct{} {
	return d.output
}

// stop halts any pending timer and closes the output channel. Safe to call
// multiple times.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
