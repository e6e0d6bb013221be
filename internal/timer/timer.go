// Package timer provides a restartable callback timer used for keep-alive
// pings and network auto-disable backoff.
package timer

import (
	"sync"
	"time"
)

// Timer fires a callback after an interval, either once or repeatedly.
// All methods are safe for concurrent use, including from inside the
// callback.
type Timer struct {
	mu        sync.Mutex
	fn        func()
	interval  time.Duration
	recurring bool
	t         *time.Timer
	gen       uint64
}

// New returns a stopped timer that will call fn when it fires.
func New(fn func()) *Timer {
	return &Timer{fn: fn}
}

// Start arms a one-shot timer, replacing any pending schedule.
func (t *Timer) Start(d time.Duration) {
	t.arm(d, false)
}

// StartRecurring arms a timer that fires every d until stopped.
func (t *Timer) StartRecurring(d time.Duration) {
	t.arm(d, true)
}

// Restart re-arms the timer with its last interval and mode.
func (t *Timer) Restart() {
	t.mu.Lock()
	d, recurring := t.interval, t.recurring
	t.mu.Unlock()
	if d <= 0 {
		return
	}
	t.arm(d, recurring)
}

// Stop cancels any pending fire. A callback already running is not
// interrupted.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// Active reports whether a fire is pending.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}

// Interval returns the last armed interval.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Timer) arm(d time.Duration, recurring bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	gen := t.gen
	t.interval = d
	t.recurring = recurring
	t.t = time.AfterFunc(d, func() { t.fire(gen) })
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	if t.recurring {
		t.t = time.AfterFunc(t.interval, func() { t.fire(gen) })
	} else {
		t.t = nil
	}
	fn := t.fn
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}
