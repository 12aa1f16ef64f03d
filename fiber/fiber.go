// File: fiber/fiber.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fiber is the runtime's user-space stackful coroutine. Go exposes no
// ucontext-style save/restore primitive, so each task fiber is backed by
// one dedicated goroutine, parked on an unbuffered channel when not
// current; the goroutine's own (runtime-managed, growable) stack stands
// in for a saved stack buffer, and the blocking receive on that channel
// stands in for saved machine context.
package fiber

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/aoduze/sylar/config"
	"github.com/aoduze/sylar/control"
)

var (
	nextID      uint64
	totalFibers int64
	stackConfig atomic.Pointer[config.Registry]
)

// TotalFibers returns the number of constructed fibers not yet destroyed.
func TotalFibers() int64 {
	return atomic.LoadInt64(&totalFibers)
}

// UseConfig installs the registry NewTask consults for its default stack
// size whenever callers pass stackSize <= 0. Passing nil restores the
// hardcoded DefaultStackSize.
func UseConfig(r *config.Registry) {
	stackConfig.Store(r)
}

// defaultStackSize reads fiber.stack_size from the installed registry, if
// any, falling back to DefaultStackSize.
func defaultStackSize() int {
	r := stackConfig.Load()
	if r == nil {
		return DefaultStackSize
	}
	return config.GetOr(r, config.FiberStackSizeKey, DefaultStackSize)
}

// Fiber is a user-space stackful coroutine.
type Fiber struct {
	id        uint64
	state     atomic.Int32
	stackSize int
	isMain    bool
	useCaller bool

	mu  sync.Mutex
	cb  func()
	ctx any

	resumeCh chan struct{}
	yieldCh  chan struct{}
	started  bool
	closed   bool
}

// NewTask allocates a task fiber with a private stack. useCaller only
// affects which swap target Call/Back resume against; this
// implementation's rendezvous channels make SwapIn/Call and SwapOut/Back
// symmetric regardless.
func NewTask(cb func(), stackSize int, useCaller bool) *Fiber {
	if stackSize <= 0 {
		stackSize = defaultStackSize()
	}
	f := &Fiber{
		id:        atomic.AddUint64(&nextID, 1),
		stackSize: stackSize,
		useCaller: useCaller,
		cb:        cb,
		resumeCh:  make(chan struct{}),
		yieldCh:   make(chan struct{}),
	}
	f.state.Store(int32(INIT))
	atomic.AddInt64(&totalFibers, 1)
	return f
}

// DefaultStackSize is the default stack buffer size (128 KiB). Go
// goroutine stacks grow on demand; this value is retained only so the
// config knob and accounting surface stay meaningful.
const DefaultStackSize = 128 * 1024

// newMainFiber builds the placeholder fiber representing a native
// goroutine's own stack.
func newMainFiber() *Fiber {
	f := &Fiber{
		id:     atomic.AddUint64(&nextID, 1),
		isMain: true,
	}
	f.state.Store(int32(EXEC))
	atomic.AddInt64(&totalFibers, 1)
	return f
}

// ID returns the fiber's monotonically assigned identity.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// IsMain reports whether this fiber represents a thread's native stack.
func (f *Fiber) IsMain() bool { return f.isMain }

// GetCurrent returns the calling goroutine's current fiber, lazily
// creating its main fiber on first use.
func GetCurrent() *Fiber {
	if f, ok := lookupCurrent(); ok {
		return f
	}
	f := newMainFiber()
	setCurrent(f)
	return f
}

// GetID returns the id of the calling goroutine's current fiber.
func GetID() uint64 { return GetCurrent().id }

// Context returns the opaque value most recently attached with SetContext.
// The scheduler package uses this slot to tell a fiber which scheduler and
// worker thread is currently resuming it, without fiber depending on
// scheduler; unset until something calls SetContext.
func (f *Fiber) Context() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx
}

// SetContext attaches an opaque value to the fiber, readable via Context
// from inside the fiber's own callback once resumed.
func (f *Fiber) SetContext(ctx any) {
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()
}

// Reset re-primes a terminated or never-started fiber with a new
// callback. Valid only in {TERM, INIT, EXCEPT}.
func (f *Fiber) Reset(cb func()) {
	st := f.State()
	if st != TERM && st != INIT && st != EXCEPT {
		panicProgrammingError("fiber: Reset called in state %s, want TERM/INIT/EXCEPT", st)
	}
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	f.state.Store(int32(INIT))
}

// SwapIn makes f the current fiber, running it until it yields or
// terminates.
func (f *Fiber) SwapIn() {
	if f.State() == EXEC {
		panicProgrammingError("fiber: SwapIn on fiber %d already EXEC", f.id)
	}
	f.state.Store(int32(EXEC))

	f.mu.Lock()
	started := f.started
	f.started = true
	f.mu.Unlock()

	if !started {
		go f.run()
	} else {
		f.resumeCh <- struct{}{}
	}
	<-f.yieldCh
}

// SwapOut sets the fiber to HOLD and yields control back to whichever
// goroutine called SwapIn/Call on this fiber. Must be called by the fiber's own goroutine (i.e. f ==
// GetCurrent()).
func (f *Fiber) SwapOut() {
	f.parkAndWait(HOLD)
}

// Call is the use_caller-mode counterpart to SwapIn.
func (f *Fiber) Call() { f.SwapIn() }

// Back is the use_caller-mode counterpart to SwapOut.
func (f *Fiber) Back() { f.SwapOut() }

// YieldToReady transitions the calling goroutine's current fiber to
// READY then swaps out.
func YieldToReady() {
	GetCurrent().parkAndWait(READY)
}

// YieldToHold transitions the calling goroutine's current fiber to HOLD
// then swaps out.
func YieldToHold() {
	GetCurrent().parkAndWait(HOLD)
}

// parkAndWait is the shared suspension primitive behind SwapOut,
// YieldToReady, and YieldToHold: set state, hand control back to the
// resumer, then block until resumed.
func (f *Fiber) parkAndWait(next State) {
	if f.isMain {
		panicProgrammingError("fiber: cannot yield the main fiber (id %d); nothing would resume it", f.id)
	}
	if f.State() != EXEC {
		panicProgrammingError("fiber: parkAndWait on fiber %d not EXEC (state=%s)", f.id, f.State())
	}
	f.state.Store(int32(next))
	f.yieldCh <- struct{}{}
	<-f.resumeCh
	f.state.Store(int32(EXEC))
}

// run is the trampoline: executes cb under a catch-all, then loops
// waiting for Reset+SwapIn to reuse the goroutine, or for Close to
// retire it for good.
func (f *Fiber) run() {
	setCurrent(f)
	for {
		f.runOnce()
		f.yieldCh <- struct{}{}
		if _, ok := <-f.resumeCh; !ok {
			forgetCurrent()
			return
		}
		f.state.Store(int32(EXEC))
	}
}

func (f *Fiber) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			f.state.Store(int32(EXCEPT))
			control.Log().Error().
				Uint64("fiber_id", f.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("fiber: callback panicked")
		}
	}()
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb()
	if f.State() != EXCEPT {
		f.state.Store(int32(TERM))
	}
}

// Close permanently retires a task fiber's goroutine. Valid only once
// the fiber is in {TERM, INIT}.
func (f *Fiber) Close() {
	if f.isMain {
		forgetCurrent()
		atomic.AddInt64(&totalFibers, -1)
		return
	}
	st := f.State()
	if st != TERM && st != INIT {
		panicProgrammingError("fiber: Close on fiber %d in state %s, want TERM/INIT", f.id, st)
	}
	f.mu.Lock()
	started := f.started
	closed := f.closed
	f.closed = true
	f.mu.Unlock()
	if closed {
		return
	}
	if started {
		close(f.resumeCh)
	}
	atomic.AddInt64(&totalFibers, -1)
}

func panicProgrammingError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	control.Log().Error().Bytes("stack", debug.Stack()).Msg(msg)
	panic(msg)
}
