// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler is the N:M run loop over Fiber. Each worker is one OS thread
// (runtime.LockOSThread'd goroutine), optionally pinned to a CPU via the
// affinity package; workers share one FIFO run queue and one reusable
// idle fiber each.
package scheduler

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aoduze/sylar/affinity"
	"github.com/aoduze/sylar/control"
	"github.com/aoduze/sylar/fiber"
)

// Scheduler coordinates a pool of worker threads draining a shared run
// queue of fibers and callbacks.
type Scheduler struct {
	name      string
	useCaller bool
	threads   int

	hooks Hooks
	queue *runQueue

	active atomic.Int32
	idle   atomic.Int32

	running  atomic.Bool
	stopping atomic.Bool
	autoStop atomic.Bool

	rootFiber *fiber.Fiber
	callerGID int64
	wg        sync.WaitGroup
}

// NewScheduler builds a Scheduler with the given number of worker threads.
// If useCaller is true, the constructing goroutine's thread is counted as
// worker 0 and only threads-1 extra goroutines are spawned; the caller
// must later call Stop from that same goroutine so its root fiber can
// drain residual work.
func NewScheduler(threads int, useCaller bool, name string) *Scheduler {
	if threads < 1 {
		threads = 1
	}
	s := &Scheduler{
		name:      name,
		useCaller: useCaller,
		threads:   threads,
		queue:     newRunQueue(),
	}
	s.hooks = s // plain scheduler is its own default Hooks implementation
	s.stopping.Store(true)

	if useCaller {
		s.callerGID = currentGoroutineHint()
		s.rootFiber = fiber.NewTask(func() { s.loop(0) }, 0, true)
	}
	return s
}

// SetHooks installs a replacement Hooks implementation (IOManager uses
// this to override Tickle/Idle/Stopping/OnTimerInsertedAtFront while
// still delegating to the Scheduler for everything else).
func (s *Scheduler) SetHooks(h Hooks) { s.hooks = h }

// ActiveCount returns the number of workers currently running a fiber or
// callback.
func (s *Scheduler) ActiveCount() int32 { return s.active.Load() }

// IdleCount returns the number of workers currently parked in their idle
// fiber.
func (s *Scheduler) IdleCount() int32 { return s.idle.Load() }

// QueueEmpty reports whether the run queue currently holds no entries.
func (s *Scheduler) QueueEmpty() bool { return s.queue.empty() }

// Name returns the scheduler's label, used to namespace its debug probes
// and metrics keys.
func (s *Scheduler) Name() string { return s.name }

// RegisterProbes exposes the scheduler's live counters through dp under
// keys namespaced by the scheduler's name, so an operator can inspect a
// running scheduler through the same introspection surface used for the
// rest of the runtime.
func (s *Scheduler) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("scheduler."+s.name+".active_count", func() any { return s.ActiveCount() })
	dp.RegisterProbe("scheduler."+s.name+".idle_count", func() any { return s.IdleCount() })
	dp.RegisterProbe("scheduler."+s.name+".queue_empty", func() any { return s.QueueEmpty() })
}

// RecordMetrics snapshots the scheduler's current counters into mr. Call
// it periodically (e.g. from a recurring timer) to feed a metrics
// dashboard or exporter.
func (s *Scheduler) RecordMetrics(mr *control.MetricsRegistry) {
	mr.Set("scheduler."+s.name+".active_count", s.ActiveCount())
	mr.Set("scheduler."+s.name+".idle_count", s.IdleCount())
	mr.Set("scheduler."+s.name+".queue_empty", s.QueueEmpty())
}

// Start spawns the worker goroutines. A second call while already running
// is a no-op.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.stopping.Store(false)

	first := 0
	if s.useCaller {
		first = 1
	}
	for i := first; i < s.threads; i++ {
		i := i
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runWorker(i)
		}()
	}
}

// runWorker pins the calling goroutine's OS thread (best-effort) and runs
// the scheduling loop directly on it — used for every worker except the
// caller-participation one, which instead runs inside rootFiber.
func (s *Scheduler) runWorker(threadID int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := affinity.SetAffinity(threadID % runtime.NumCPU()); err != nil {
		control.Log().Debug().Str("scheduler", s.name).Int("thread", threadID).Err(err).
			Msg("scheduler: affinity pinning unavailable")
	}
	s.loop(threadID)
}

// Stop commands the scheduler to wind down once the run queue drains and
// no worker is active. If the scheduler was built with
// useCaller, Stop must be called from the same goroutine that called
// NewScheduler, and it blocks draining the root fiber's share of the work
// before returning; calling it from any other goroutine is a programming
// error.
func (s *Scheduler) Stop() {
	if s.useCaller && currentGoroutineHint() != s.callerGID {
		panicProgrammingError("scheduler %q: Stop called off the constructing goroutine in use_caller mode", s.name)
	}
	s.autoStop.Store(true)
	s.stopping.Store(true)
	s.hooks.Tickle()

	if s.useCaller && s.rootFiber.State() != fiber.TERM {
		s.rootFiber.SwapIn()
	}
	s.wg.Wait()
	s.running.Store(false)
}

// Schedule enqueues a fiber-backed entry, pinning it to thread (or
// AnyThread), then tickles a worker.
func (s *Scheduler) Schedule(f *fiber.Fiber, thread int) {
	s.queue.push(Entry{Fiber: f, Thread: thread})
	s.hooks.Tickle()
}

// ScheduleCallback enqueues a one-shot callback entry.
func (s *Scheduler) ScheduleCallback(cb func(), thread int) {
	s.queue.push(Entry{Cb: cb, Thread: thread})
	s.hooks.Tickle()
}

// ScheduleBatch enqueues many entries before tickling once, avoiding a
// tickle storm for bulk submissions.
func (s *Scheduler) ScheduleBatch(entries []Entry) {
	for _, e := range entries {
		s.queue.push(e)
	}
	s.hooks.Tickle()
}

// SwitchTo re-schedules the calling fiber onto a specific worker thread
// and yields, resuming once that worker picks it back up. A no-op if
// already running on the requested thread.
func SwitchTo(s *Scheduler, thread int) {
	cur := fiber.GetCurrent()
	if ctx, ok := cur.Context().(*workerCtx); ok && ctx.sched == s && ctx.threadID == thread {
		return
	}
	s.Schedule(cur, thread)
	fiber.YieldToHold()
}

// Dump writes a human-readable snapshot of scheduler state.
func (s *Scheduler) Dump(w io.Writer) {
	fmt.Fprintf(w, "scheduler %q: threads=%d active=%d idle=%d stopping=%v queue_empty=%v\n",
		s.name, s.threads, s.active.Load(), s.idle.Load(), s.stopping.Load(), s.queue.empty())
}

// --- default Hooks implementation (plain Scheduler) ---

// Tickle is a no-op for the plain scheduler: workers busy-poll the run
// queue between idle passes, so there is nothing to wake. IOManager
// overrides this to interrupt a blocking epoll_wait.
func (s *Scheduler) Tickle() {}

// Idle is the plain scheduler's idle fiber body: park in HOLD until
// Stopping() becomes true.
func (s *Scheduler) Idle() {
	for !s.hooks.Stopping() {
		fiber.YieldToHold()
	}
}

// Stopping reports whether the scheduler should wind down.
func (s *Scheduler) Stopping() bool {
	return s.autoStop.Load() && s.stopping.Load() && s.queue.empty() && s.active.Load() == 0
}

// OnTimerInsertedAtFront is a no-op for the plain scheduler; only
// IOManager has a blocking wait worth interrupting.
func (s *Scheduler) OnTimerInsertedAtFront() {}

func panicProgrammingError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	control.Log().Error().Msg(msg)
	panic(msg)
}
