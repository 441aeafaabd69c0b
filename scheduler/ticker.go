// Package scheduler provides the two host timer models channel controllers
// are bound to.
//
// Ticker follows the GUI toolkit model: a recurring timer with an interval
// and a timeout callback. FrameLoop follows the 3D host model: a table of
// timer functions, each returning the delay to its next call, stepped by the
// host's main loop.
package scheduler

import (
	"sync"
	"time"
)

const minInterval = time.Millisecond

// Ticker is a recurring timer. The callback runs on the ticker's own
// goroutine and never overlaps with itself.
type Ticker struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	stop     chan struct{} // nil when inactive

	runMu sync.Mutex // serializes fn across restarts
}

func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// SetInterval changes the period. It takes effect on the next Start.
func (t *Ticker) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}

// OnTimeout sets the callback fired every interval.
func (t *Ticker) OnTimeout(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
}

// Start activates the timer. Starting an active timer does nothing.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	go t.loop(max(t.interval, minInterval), t.fn, t.stop)
}

// Stop deactivates the timer. A callback already running completes; no new
// one starts. Safe to call from inside the callback.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

// Active reports whether the timer is started.
func (t *Ticker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Ticker) loop(interval time.Duration, fn func(), stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		// A tick and a stop can race; stop wins.
		select {
		case <-stop:
			return
		default:
		}
		if fn != nil {
			t.runMu.Lock()
			fn()
			t.runMu.Unlock()
		}
	}
}
