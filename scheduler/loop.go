// File: scheduler/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The per-worker scheduling loop: dequeue a ready entry or, failing that,
// park in the worker's reusable idle fiber; repeat until Stopping()
// retires the idle fiber for good.
package scheduler

import "github.com/aoduze/sylar/fiber"

func (s *Scheduler) loop(threadID int) {
	idleFiber := fiber.NewTask(func() { s.hooks.Idle() }, 0, false)
	var cbFiber *fiber.Fiber

	for {
		entry, ok, skippedAffinity := s.queue.selectReady(threadID)
		if skippedAffinity {
			s.hooks.Tickle()
		}
		if ok {
			s.active.Add(1)
			cbFiber = s.runEntry(entry, threadID, cbFiber)
			s.active.Add(-1)
			continue
		}

		if idleFiber.State() == fiber.TERM || idleFiber.State() == fiber.EXCEPT {
			break
		}
		s.idle.Add(1)
		idleFiber.SetContext(&workerCtx{sched: s, threadID: threadID})
		idleFiber.SwapIn()
		s.idle.Add(-1)
	}

	if idleFiber.State() == fiber.TERM {
		idleFiber.Close()
	}
}

// runEntry dispatches one dequeued entry and returns the (possibly new,
// possibly nilled-out) reusable callback fiber for this worker.
func (s *Scheduler) runEntry(e Entry, threadID int, cbFiber *fiber.Fiber) *fiber.Fiber {
	if e.Fiber != nil {
		f := e.Fiber
		f.SetContext(&workerCtx{sched: s, threadID: threadID})
		f.SwapIn()
		if f.State() == fiber.READY {
			s.Schedule(f, AnyThread)
		}
		return cbFiber
	}

	if cbFiber == nil {
		cbFiber = fiber.NewTask(e.Cb, 0, false)
	} else {
		cbFiber.Reset(e.Cb)
	}
	cbFiber.SetContext(&workerCtx{sched: s, threadID: threadID})
	cbFiber.SwapIn()
	switch cbFiber.State() {
	case fiber.TERM:
		// Finished cleanly: clear its bound callback and hand the handle
		// back for reuse next cycle.
		cbFiber.Reset(nil)
		return cbFiber
	case fiber.READY:
		s.Schedule(cbFiber, AnyThread)
		return nil
	default:
		// HOLD (parked awaiting an external resume, possibly because the
		// callback itself already called Schedule/SwitchTo) or EXCEPT:
		// the fiber no longer belongs to this worker's reusable slot.
		return nil
	}
}
