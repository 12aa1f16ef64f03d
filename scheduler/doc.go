// Package scheduler implements the fiber runtime's N:M worker pool: a
// shared FIFO run queue, per-worker reusable idle and callback fibers,
// and a small Hooks seam that iomanager.IOManager uses to fold an epoll
// reactor into the same run loop.
package scheduler
