package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func drainDue(m *Manager) int {
	cbs := m.ListExpiredCb()
	for _, cb := range cbs {
		cb()
	}
	return len(cbs)
}

func TestAddTimerFiresOnce(t *testing.T) {
	m := NewManager()
	var fired atomic.Int32
	m.AddTimer(5*time.Millisecond, func() { fired.Add(1) }, false)

	time.Sleep(20 * time.Millisecond)
	if n := drainDue(m); n != 1 {
		t.Fatalf("drained %d callbacks, want 1", n)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
	if m.HasTimer() {
		t.Fatalf("one-shot timer should not remain after firing")
	}
}

func TestRecurringTimerRequeues(t *testing.T) {
	m := NewManager()
	timer := m.AddTimer(5*time.Millisecond, func() {}, true)
	defer timer.Cancel()

	time.Sleep(20 * time.Millisecond)
	drainDue(m)
	if !m.HasTimer() {
		t.Fatalf("recurring timer should have been requeued")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	m := NewManager()
	var fired atomic.Int32
	timer := m.AddTimer(5*time.Millisecond, func() { fired.Add(1) }, false)
	if !timer.Cancel() {
		t.Fatalf("Cancel returned false")
	}
	if timer.Cancel() {
		t.Fatalf("second Cancel should report false")
	}

	time.Sleep(20 * time.Millisecond)
	if n := drainDue(m); n != 0 {
		t.Fatalf("drained %d callbacks, want 0", n)
	}
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired")
	}
}

func TestConditionTimerSkippedWhenFalse(t *testing.T) {
	m := NewManager()
	var fired atomic.Int32
	alive := false
	m.AddConditionTimer(5*time.Millisecond, func() { fired.Add(1) }, func() bool { return alive }, false)

	time.Sleep(20 * time.Millisecond)
	if n := drainDue(m); n != 0 {
		t.Fatalf("drained %d callbacks, want 0 since condition is false", n)
	}
	if fired.Load() != 0 {
		t.Fatalf("condition timer fired despite false condition")
	}
}

func TestNextTimerReflectsSoonestEntry(t *testing.T) {
	m := NewManager()
	m.AddTimer(time.Hour, func() {}, false)
	m.AddTimer(time.Minute, func() {}, false)

	d, ok := m.NextTimer()
	if !ok {
		t.Fatalf("NextTimer reported no pending timer")
	}
	if d > time.Minute || d <= 0 {
		t.Fatalf("NextTimer = %v, want close to 1m", d)
	}
}

func TestInsertedAtFrontHookFiresForSoonerTimer(t *testing.T) {
	m := NewManager()
	var calls atomic.Int32
	m.SetOnTimerInsertedAtFront(func() { calls.Add(1) })

	m.AddTimer(time.Hour, func() {}, false)
	if calls.Load() != 1 {
		t.Fatalf("first timer should always be front, calls = %d", calls.Load())
	}
	m.AddTimer(time.Minute, func() {}, false)
	if calls.Load() != 2 {
		t.Fatalf("sooner timer should re-trigger the front hook, calls = %d", calls.Load())
	}
	m.AddTimer(2*time.Hour, func() {}, false)
	if calls.Load() != 2 {
		t.Fatalf("later timer should not trigger the front hook, calls = %d", calls.Load())
	}
}

func TestResetSameIntervalNotFromNowIsNoOp(t *testing.T) {
	m := NewManager()
	timer := m.AddTimer(time.Hour, func() {}, false)

	before := timer.next
	if timer.Reset(time.Hour, false) {
		t.Fatalf("Reset with the same interval and fromNow=false should report false")
	}
	after := timer.next
	if !before.Equal(after) {
		t.Fatalf("no-op Reset changed next fire time: before=%v after=%v", before, after)
	}
}

func TestResetRecomputesFromOriginalBaseline(t *testing.T) {
	m := NewManager()
	var fired atomic.Int32
	// Timer's baseline start is ~now; original interval is 30ms.
	timer := m.AddTimer(30*time.Millisecond, func() { fired.Add(1) }, false)

	// Shrink the interval to 10ms, keeping the original (not "now")
	// baseline: start + 10ms has passed after the 15ms sleep below, so the
	// timer is due by then. A buggy reset that rebased off the old next
	// (start+30ms) would instead fire no earlier than start+40ms.
	if !timer.Reset(10*time.Millisecond, false) {
		t.Fatalf("Reset with a different interval should report true")
	}

	time.Sleep(15 * time.Millisecond)
	if n := drainDue(m); n != 1 {
		t.Fatalf("drained %d callbacks, want 1 (baseline-preserving reset)", n)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
}

func TestClockRollbackExpiresAllPendingTimers(t *testing.T) {
	m := NewManager()
	var fired atomic.Int32
	m.AddTimer(time.Hour, func() { fired.Add(1) }, false)
	m.AddTimer(2*time.Hour, func() { fired.Add(1) }, false)

	// Prime lastObserved, then simulate the wall clock having jumped far
	// enough backward to trip the rollover guard on the next pass.
	m.lastObserved = time.Now().Add(2 * time.Hour)

	drainDue(m)
	if fired.Load() != 2 {
		t.Fatalf("fired = %d, want 2 after simulated clock rollback", fired.Load())
	}
}
