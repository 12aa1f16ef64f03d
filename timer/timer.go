// File: timer/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package timer

import "time"

// Timer is a single pending or recurring callback.
type Timer struct {
	seq       uint64
	next      time.Time
	interval  time.Duration
	recurring bool
	cb        func()
	cond      func() bool // optional guard; nil means unconditional
	index     int         // position in the owning Manager's heap, -1 if not queued
	cancelled bool

	mgr *Manager
}

// Cancel removes the timer from its manager if still pending. It is safe
// to call more than once or after the timer has already fired.
func (t *Timer) Cancel() bool {
	return t.mgr.cancel(t)
}

// Refresh reschedules a one-shot or recurring timer to fire interval from
// now, keeping its callback and condition.
func (t *Timer) Refresh() bool {
	return t.mgr.refresh(t)
}

// Reset changes a timer's interval and, if fromNow is true, reschedules
// relative to the current time; otherwise relative to its original
// baseline.
func (t *Timer) Reset(interval time.Duration, fromNow bool) bool {
	return t.mgr.reset(t, interval, fromNow)
}
