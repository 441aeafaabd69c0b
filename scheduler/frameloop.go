package scheduler

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// TimerFunc is called when its timer is due. It returns the delay until the
// next call; a negative delay unregisters the timer.
type TimerFunc func() time.Duration

type frameTimer struct {
	fn  TimerFunc
	due time.Time
	seq uint64 // registration order, tie-breaker for equal due times
}

// FrameLoop is a timer table stepped by the host's main loop. Timer
// functions run on the goroutine that calls Step.
type FrameLoop struct {
	mu     sync.Mutex
	timers map[string]*frameTimer
	seq    uint64
	now    func() time.Time
}

func NewFrameLoop() *FrameLoop {
	return &FrameLoop{
		timers: make(map[string]*frameTimer),
		now:    time.Now,
	}
}

// Register adds fn under id, due on the next Step. Registering an existing id
// replaces its function.
func (l *FrameLoop) Register(id string, fn func() time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.timers[id] = &frameTimer{fn: fn, due: l.now(), seq: l.seq}
}

func (l *FrameLoop) Unregister(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.timers, id)
}

func (l *FrameLoop) IsRegistered(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[id]
	return ok
}

// Len returns the number of registered timers.
func (l *FrameLoop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

type dueTimer struct {
	id  string
	t   *frameTimer
	due time.Time
}

// Step runs every timer due at now, earliest first, and returns how many ran.
// Timers may register or unregister timers (including themselves) while
// running; a timer unregistered by an earlier one in the same step is skipped.
func (l *FrameLoop) Step(now time.Time) int {
	l.mu.Lock()
	var due []dueTimer
	for id, t := range l.timers {
		if !t.due.After(now) {
			due = append(due, dueTimer{id: id, t: t, due: t.due})
		}
	}
	l.mu.Unlock()

	slices.SortFunc(due, func(a, b dueTimer) int {
		return cmp.Or(a.due.Compare(b.due), cmp.Compare(a.t.seq, b.t.seq))
	})

	ran := 0
	for _, d := range due {
		if !l.current(d) {
			continue
		}
		next := d.t.fn()
		ran++

		l.mu.Lock()
		if l.timers[d.id] == d.t {
			if next < 0 {
				delete(l.timers, d.id)
			} else {
				d.t.due = now.Add(next)
			}
		}
		l.mu.Unlock()
	}
	return ran
}

func (l *FrameLoop) current(d dueTimer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers[d.id] == d.t
}

// Run steps the loop once per frame until ctx is done.
func (l *FrameLoop) Run(ctx context.Context, frame time.Duration) error {
	ticker := time.NewTicker(max(frame, minInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.Step(now)
		}
	}
}
