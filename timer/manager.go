// File: timer/manager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/aoduze/sylar/control"
)

// rolloverThreshold is how far backwards the clock must jump between two
// consecutive observations before Manager treats it as a clock rollover
// rather than ordinary scheduling jitter.
const rolloverThreshold = time.Hour

// Manager is the runtime's timer heap.
type Manager struct {
	mu            sync.Mutex
	h             timerHeap
	seq           uint64
	lastObserved  time.Time
	onInsertFront func()
}

// NewManager constructs an empty timer manager.
func NewManager() *Manager {
	return &Manager{}
}

// SetOnTimerInsertedAtFront installs the hook invoked (without the
// manager lock held) whenever a newly added timer becomes the soonest
// pending one, so a composing IOManager can interrupt a blocking wait.
func (m *Manager) SetOnTimerInsertedAtFront(fn func()) {
	m.mu.Lock()
	m.onInsertFront = fn
	m.mu.Unlock()
}

// AddTimer schedules cb to run after interval, once or repeatedly.
func (m *Manager) AddTimer(interval time.Duration, cb func(), recurring bool) *Timer {
	return m.addTimer(interval, cb, nil, recurring)
}

// AddConditionTimer is like AddTimer, but the callback only fires if cond
// returns true at expiry time; this is how a caller expresses "run this
// only if the thing I care about still exists" without the manager
// itself holding a reference that would keep it alive.
func (m *Manager) AddConditionTimer(interval time.Duration, cb func(), cond func() bool, recurring bool) *Timer {
	return m.addTimer(interval, cb, cond, recurring)
}

func (m *Manager) addTimer(interval time.Duration, cb func(), cond func() bool, recurring bool) *Timer {
	t := &Timer{
		next:      time.Now().Add(interval),
		interval:  interval,
		recurring: recurring,
		cb:        cb,
		cond:      cond,
		mgr:       m,
	}

	m.mu.Lock()
	atFront := m.insertLocked(t)
	hook := m.onInsertFront
	m.mu.Unlock()

	if atFront && hook != nil {
		hook()
	}
	return t
}

// insertLocked pushes t onto the heap and reports whether it is now the
// soonest-expiring entry.
func (m *Manager) insertLocked(t *Timer) bool {
	m.seq++
	t.seq = m.seq
	heap.Push(&m.h, t)
	return m.h[0] == t
}

func (m *Manager) cancel(t *Timer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&m.h, t.index)
	t.cancelled = true
	return true
}

func (m *Manager) refresh(t *Timer) bool {
	return m.reset(t, t.interval, true)
}

func (m *Manager) reset(t *Timer, interval time.Duration, fromNow bool) bool {
	m.mu.Lock()
	if t.index < 0 || t.cancelled {
		m.mu.Unlock()
		return false
	}
	if interval == t.interval && !fromNow {
		m.mu.Unlock()
		return false
	}
	oldInterval := t.interval
	heap.Remove(&m.h, t.index)
	t.interval = interval
	if fromNow {
		t.next = time.Now().Add(interval)
	} else {
		start := t.next.Add(-oldInterval)
		t.next = start.Add(interval)
	}
	atFront := m.insertLocked(t)
	hook := m.onInsertFront
	m.mu.Unlock()

	if atFront && hook != nil {
		hook()
	}
	return true
}

// HasTimer reports whether any timer is pending.
func (m *Manager) HasTimer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.h) > 0
}

// NextTimer returns the duration until the soonest pending timer expires
// (zero or negative if already due) and whether any timer is pending at
// all; used to size an epoll_wait timeout.
func (m *Manager) NextTimer() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.h) == 0 {
		return 0, false
	}
	return time.Until(m.h[0].next), true
}

// ListExpiredCb pops every timer that is due as of now, requeues the
// recurring ones, and returns the callbacks to invoke (condition timers
// whose cond() returns false are dropped silently). It also handles
// clock rollover: if the wall clock has jumped backward by more than an
// hour since the last observation, every pending timer is treated as
// expired immediately, since it would otherwise never fire (or fire
// absurdly late) under the new clock.
func (m *Manager) ListExpiredCb() []func() {
	m.mu.Lock()
	now := time.Now()

	rollback := !m.lastObserved.IsZero() && now.Before(m.lastObserved.Add(-rolloverThreshold))
	m.lastObserved = now

	if rollback {
		control.Log().Warn().Msg("timer: detected backward clock jump over 1h, expiring all pending timers")
		for _, t := range m.h {
			t.next = now
		}
	}

	var cbs []func()
	var requeue []*Timer
	for len(m.h) > 0 && !m.h[0].next.After(now) {
		t := heap.Pop(&m.h).(*Timer)
		if t.cond != nil && !t.cond() {
			continue
		}
		cbs = append(cbs, t.cb)
		if t.recurring && !t.cancelled {
			t.next = now.Add(t.interval)
			requeue = append(requeue, t)
		}
	}
	// Recurring timers are requeued after the pass completes, never
	// inside the pop loop above, so a short interval can't make a timer
	// fire twice for the same instant.
	for _, t := range requeue {
		m.insertLocked(t)
	}
	m.mu.Unlock()
	return cbs
}
