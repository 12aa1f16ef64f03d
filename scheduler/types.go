// File: scheduler/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import "github.com/aoduze/sylar/fiber"

// AnyThread is the wildcard thread affinity: the entry may run on whichever
// worker dequeues it first.
const AnyThread = -1

// Entry is one unit of scheduling: either a long-lived Fiber or a one-shot
// callback, optionally pinned to a specific worker thread id.
type Entry struct {
	Fiber  *fiber.Fiber
	Cb     func()
	Thread int
}

// Hooks are the four extension points a Scheduler exposes so that a
// composing type (iomanager.IOManager) can override scheduling behavior
// without re-implementing the run loop. The plain Scheduler satisfies
// Hooks itself; NewScheduler installs that as the default, and embedders
// call SetHooks to substitute their own.
type Hooks interface {
	// Tickle wakes an idle worker so it rechecks the run queue. Called
	// with no locks held.
	Tickle()
	// Idle is the idle fiber's entire body: it must loop internally,
	// yielding to hold between passes, until Stopping() is true.
	Idle()
	// Stopping reports whether the scheduler should wind down: no more
	// work will ever arrive and nothing is currently running.
	Stopping() bool
	// OnTimerInsertedAtFront is called (outside any scheduler lock) when
	// a new soonest-timer has been inserted, so overriders (IOManager)
	// can interrupt a blocking wait.
	OnTimerInsertedAtFront()
}

// workerCtx is attached to a fiber via fiber.SetContext immediately before
// it is resumed, so code running inside the fiber can recover which
// scheduler and which worker thread is currently driving it (used by
// SwitchTo).
type workerCtx struct {
	sched    *Scheduler
	threadID int
}
