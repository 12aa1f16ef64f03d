// Package iomanager composes scheduler.Scheduler and timer.Manager with
// an epoll-backed I/O reactor, so that fibers can block on socket
// readiness the same way they block on a timer: register interest,
// yield to hold, and let the scheduler's idle pass resume them when the
// fd becomes ready. The reactor itself only has a real backend on Linux
// (golang.org/x/sys/unix epoll); other platforms get a stub that
// reports the feature unsupported.
package iomanager
