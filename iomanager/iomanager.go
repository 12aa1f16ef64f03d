// File: iomanager/iomanager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package iomanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/aoduze/sylar/control"
	"github.com/aoduze/sylar/fiber"
	"github.com/aoduze/sylar/scheduler"
	"github.com/aoduze/sylar/timer"
)

// AnyThread re-exports scheduler.AnyThread so callers need not import
// the scheduler package just to submit unpinned work through IOManager.
const AnyThread = scheduler.AnyThread

// readyFd is one readiness notification returned by a poller's wait.
type readyFd struct {
	fd     int
	events Event
}

// poller is the platform seam epoll/(stub) implementations satisfy.
type poller interface {
	add(fd int, ev Event) error
	modify(fd int, ev Event) error
	remove(fd int) error
	wait(timeoutMs int) ([]readyFd, error)
	wake() error
	close() error
}

// IOManager composes a Scheduler and a timer.Manager with an I/O reactor.
// It overrides the Scheduler's Hooks so that each worker's idle fiber polls
// for readiness and drains due timers between passes, instead of merely
// parking.
type IOManager struct {
	*scheduler.Scheduler
	timers *timer.Manager
	poll   poller

	mu  sync.RWMutex
	fds []*fdContext // indexed by fd; grown ×1.5
}

// New builds an IOManager with the given worker-thread count. Returns an
// error on platforms without a poller backend.
func New(threads int, useCaller bool, name string) (*IOManager, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	io := &IOManager{
		Scheduler: scheduler.NewScheduler(threads, useCaller, name),
		timers:    timer.NewManager(),
		poll:      p,
	}
	io.Scheduler.SetHooks(io)
	io.timers.SetOnTimerInsertedAtFront(io.OnTimerInsertedAtFront)
	return io, nil
}

// AddTimer schedules cb to run after interval, once or repeatedly.
// Exposed through IOManager since its idle pass is what drains due
// timers.
func (io *IOManager) AddTimer(interval time.Duration, cb func(), recurring bool) *timer.Timer {
	return io.timers.AddTimer(interval, cb, recurring)
}

// AddConditionTimer is AddTimer gated by cond at expiry time.
func (io *IOManager) AddConditionTimer(interval time.Duration, cb func(), cond func() bool, recurring bool) *timer.Timer {
	return io.timers.AddConditionTimer(interval, cb, cond, recurring)
}

func (io *IOManager) lookupFd(fd int) *fdContext {
	io.mu.RLock()
	defer io.mu.RUnlock()
	if fd < 0 || fd >= len(io.fds) {
		return nil
	}
	return io.fds[fd]
}

// ensureFd returns the fdContext for fd, growing the backing slice by
// ×1.5 (to at least ceil(1.5·fd)) and allocating the context on first use.
func (io *IOManager) ensureFd(fd int) *fdContext {
	io.mu.Lock()
	defer io.mu.Unlock()
	if fd >= len(io.fds) {
		newCap := len(io.fds) + len(io.fds)/2 + 1
		if want := fd + (fd+1)/2; newCap < want {
			newCap = want
		}
		if newCap <= fd {
			newCap = fd + 1
		}
		grown := make([]*fdContext, newCap)
		copy(grown, io.fds)
		io.fds = grown
	}
	if io.fds[fd] == nil {
		io.fds[fd] = &fdContext{fd: fd}
	}
	return io.fds[fd]
}

// AddEvent registers interest in ev on fd. If cb is nil, the calling
// fiber is captured and resumed (via the scheduler) when the event
// fires; otherwise cb runs as a one-shot scheduled callback. No waiter
// state is left behind if the underlying epoll_ctl call fails.
func (io *IOManager) AddEvent(fd int, ev Event, cb func()) error {
	c := io.ensureFd(fd)

	c.mu.Lock()
	w := c.waiterFor(ev)
	if w.scheduled {
		c.mu.Unlock()
		return fmt.Errorf("iomanager: fd %d already has a waiter for event %v", fd, ev)
	}
	old := c.events
	next := old | ev
	c.mu.Unlock()

	var err error
	if old == EventNone {
		err = io.poll.add(fd, next)
	} else {
		err = io.poll.modify(fd, next)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if cb != nil {
		*w = waiter{scheduled: true, cb: cb}
	} else {
		*w = waiter{scheduled: true, f: fiber.GetCurrent()}
	}
	c.events = next
	c.mu.Unlock()
	return nil
}

// DelEvent removes interest in ev on fd without invoking its waiter.
func (io *IOManager) DelEvent(fd int, ev Event) error {
	c := io.lookupFd(fd)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	w := c.waiterFor(ev)
	if !w.scheduled {
		c.mu.Unlock()
		return nil
	}
	*w = waiter{}
	c.events &^= ev
	remaining := c.events
	c.mu.Unlock()

	if remaining == EventNone {
		return io.poll.remove(fd)
	}
	return io.poll.modify(fd, remaining)
}

// CancelEvent fires ev's waiter as if it had become ready, then removes
// interest. Used to unblock a fiber on fd teardown instead of leaving it
// parked forever.
func (io *IOManager) CancelEvent(fd int, ev Event) error {
	c := io.lookupFd(fd)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	fired := c.fireLocked(ev, io.scheduleCb, io.scheduleFiber)
	remaining := c.events
	c.mu.Unlock()
	if !fired {
		return nil
	}

	if remaining == EventNone {
		return io.poll.remove(fd)
	}
	return io.poll.modify(fd, remaining)
}

// CancelAll fires and clears every waiter registered on fd.
func (io *IOManager) CancelAll(fd int) error {
	c := io.lookupFd(fd)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.fireLocked(EventRead, io.scheduleCb, io.scheduleFiber)
	c.fireLocked(EventWrite, io.scheduleCb, io.scheduleFiber)
	c.mu.Unlock()
	return io.poll.remove(fd)
}

func (io *IOManager) scheduleCb(cb func())       { io.Scheduler.ScheduleCallback(cb, scheduler.AnyThread) }
func (io *IOManager) scheduleFiber(f *fiber.Fiber) { io.Scheduler.Schedule(f, scheduler.AnyThread) }

// pendingCount scans the fd table for armed waiters: Stopping() needs to
// know whether any fd is still awaited. This is an O(n) scan over the fd
// table rather than a maintained counter; it is consulted from the idle
// pass's Stopping() check and from the pending_events probe and metric.
func (io *IOManager) pendingCount() int {
	io.mu.RLock()
	defer io.mu.RUnlock()
	n := 0
	for _, c := range io.fds {
		if c == nil {
			continue
		}
		c.mu.Lock()
		n += c.pendingLocked()
		c.mu.Unlock()
	}
	return n
}

// Close releases the poller's underlying OS resources. Call once, after
// Stop.
func (io *IOManager) Close() error {
	return io.poll.close()
}

// RegisterProbes exposes the reactor's pending-event count alongside the
// embedded Scheduler's own probes, under the same debug registry.
func (io *IOManager) RegisterProbes(dp *control.DebugProbes) {
	io.Scheduler.RegisterProbes(dp)
	dp.RegisterProbe("iomanager."+io.Scheduler.Name()+".pending_events", func() any { return io.pendingCount() })
}

// RecordMetrics snapshots the reactor's pending-event count alongside the
// embedded Scheduler's own counters.
func (io *IOManager) RecordMetrics(mr *control.MetricsRegistry) {
	io.Scheduler.RecordMetrics(mr)
	mr.Set("iomanager."+io.Scheduler.Name()+".pending_events", io.pendingCount())
}

// --- Hooks overrides ---

// Tickle interrupts a blocking wait by writing to the wake pipe, unlike
// the plain Scheduler's no-op Tickle.
func (io *IOManager) Tickle() {
	if err := io.poll.wake(); err != nil {
		control.Log().Debug().Err(err).Msg("iomanager: wake failed")
	}
}

// Stopping additionally requires that no fd is still awaited, since a
// registered read/write waiter represents work the reactor still owes
// someone.
func (io *IOManager) Stopping() bool {
	return io.Scheduler.Stopping() && io.pendingCount() == 0
}

// OnTimerInsertedAtFront interrupts the blocking wait so its timeout can
// be recomputed against the new soonest timer.
func (io *IOManager) OnTimerInsertedAtFront() { io.Tickle() }

// maxIdleTimeoutMs bounds how long a single poll.wait call may block when
// no timer requires an earlier wakeup, so the idle pass still notices a
// Stop() request (and re-evaluates Stopping()) within a bounded interval.
const maxIdleTimeoutMs = 3000

// Idle is the IOManager's idle fiber body: wait for fd readiness or the
// soonest timer, dispatch both, yield, repeat.
func (io *IOManager) Idle() {
	for !io.Stopping() {
		timeoutMs := maxIdleTimeoutMs
		if d, ok := io.timers.NextTimer(); ok {
			ms := int(d / time.Millisecond)
			if ms < 0 {
				ms = 0
			}
			if ms < timeoutMs {
				timeoutMs = ms
			}
		}

		ready, err := io.poll.wait(timeoutMs)
		if err != nil {
			control.Log().Debug().Err(err).Msg("iomanager: poll wait error")
		}
		for _, r := range ready {
			io.handleReady(r.fd, r.events)
		}
		for _, cb := range io.timers.ListExpiredCb() {
			io.scheduleCb(cb)
		}
		fiber.YieldToHold()
	}
}

func (io *IOManager) handleReady(fd int, ev Event) {
	c := io.lookupFd(fd)
	if c == nil {
		return
	}
	c.mu.Lock()
	if ev&EventRead != 0 {
		c.fireLocked(EventRead, io.scheduleCb, io.scheduleFiber)
	}
	if ev&EventWrite != 0 {
		c.fireLocked(EventWrite, io.scheduleCb, io.scheduleFiber)
	}
	remaining := c.events
	c.mu.Unlock()

	if remaining == EventNone {
		io.poll.remove(fd)
	} else if remaining != ev {
		io.poll.modify(fd, remaining)
	}
}
