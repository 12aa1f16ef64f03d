// File: iomanager/fdcontext.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package iomanager

import (
	"sync"

	"github.com/aoduze/sylar/fiber"
)

// Event is a bitmask of the readiness conditions a caller can wait for.
type Event uint32

const (
	EventNone  Event = 0
	EventRead  Event = 1 << 0
	EventWrite Event = 1 << 1
)

// waiter is what resumes when its Event fires: either a specific
// callback, or (if cb is nil) the fiber that was current when AddEvent
// was called, which the manager resumes via the scheduler instead of
// calling directly.
type waiter struct {
	scheduled bool
	cb        func()
	f         *fiber.Fiber
}

// fdContext is the per-fd waiter table entry: one waiter slot per
// direction, guarded by its own lock so that unrelated fds never
// contend with each other once past the shared vector lock.
type fdContext struct {
	mu     sync.Mutex
	fd     int
	events Event
	read   waiter
	write  waiter
}

func (c *fdContext) waiterFor(ev Event) *waiter {
	if ev == EventRead {
		return &c.read
	}
	return &c.write
}

// fireLocked reschedules the waiter for ev, if one is registered, clears
// it, and reports whether it fired. Called with c.mu held.
func (c *fdContext) fireLocked(ev Event, scheduleCb func(func()), scheduleFiber func(*fiber.Fiber)) bool {
	w := c.waiterFor(ev)
	if !w.scheduled {
		return false
	}
	cb := w.cb
	f := w.f
	*w = waiter{}
	c.events &^= ev

	switch {
	case cb != nil:
		scheduleCb(cb)
	case f != nil:
		scheduleFiber(f)
	}
	return true
}

// pendingLocked reports how many of the two waiter slots are armed.
// Called with c.mu held.
func (c *fdContext) pendingLocked() int {
	n := 0
	if c.read.scheduled {
		n++
	}
	if c.write.scheduled {
		n++
	}
	return n
}
