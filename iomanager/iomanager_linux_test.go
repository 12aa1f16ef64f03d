// File: iomanager/iomanager_linux_test.go
//
//go:build linux

package iomanager

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/aoduze/sylar/control"
	"golang.org/x/sys/unix"
)

func mustPipe(t *testing.T) (r, w int) {
	t.Helper()
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestAddEventFiresOnReadability(t *testing.T) {
	io, err := New(2, false, "io-read")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	io.Start()
	defer io.Stop()

	r, w := mustPipe(t)
	done := make(chan struct{})
	if err := io.AddEvent(r, EventRead, func() { close(done) }); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	unix.Write(w, []byte("x"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("read callback never fired")
	}
}

func TestCancelEventFiresImmediately(t *testing.T) {
	io, err := New(2, false, "io-cancel")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	io.Start()
	defer io.Stop()

	r, _ := mustPipe(t)
	var fired atomic.Bool
	if err := io.AddEvent(r, EventRead, func() { fired.Store(true) }); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	if err := io.CancelEvent(r, EventRead); err != nil {
		t.Fatalf("CancelEvent: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !fired.Load() {
		select {
		case <-deadline:
			t.Fatalf("cancelled waiter never fired")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDelEventSuppressesCallback(t *testing.T) {
	io, err := New(2, false, "io-del")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	io.Start()
	defer io.Stop()

	r, w := mustPipe(t)
	var fired atomic.Bool
	if err := io.AddEvent(r, EventRead, func() { fired.Store(true) }); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if err := io.DelEvent(r, EventRead); err != nil {
		t.Fatalf("DelEvent: %v", err)
	}

	unix.Write(w, []byte("x"))
	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("callback fired after DelEvent")
	}
}

func TestRegisterProbesExposesPendingEvents(t *testing.T) {
	io, err := New(1, false, "io-probes")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	io.Start()
	defer io.Stop()

	r, _ := mustPipe(t)
	if err := io.AddEvent(r, EventRead, func() {}); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	// Disarm before the deferred Stop: Stopping() waits for no armed waiter.
	defer io.DelEvent(r, EventRead)

	dp := control.NewDebugProbes()
	io.RegisterProbes(dp)
	snap := dp.DumpState()
	if got, _ := snap["iomanager.io-probes.pending_events"].(int); got != 1 {
		t.Fatalf("pending_events = %v, want 1", snap["iomanager.io-probes.pending_events"])
	}

	mr := control.NewMetricsRegistry()
	io.RecordMetrics(mr)
	if _, ok := mr.GetSnapshot()["iomanager.io-probes.pending_events"]; !ok {
		t.Fatalf("RecordMetrics did not record pending_events")
	}
}

func TestAddTimerFiresThroughIdleLoop(t *testing.T) {
	io, err := New(1, false, "io-timer")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	io.Start()
	defer io.Stop()

	done := make(chan struct{})
	io.AddTimer(10*time.Millisecond, func() { close(done) }, false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer callback never fired")
	}
}
