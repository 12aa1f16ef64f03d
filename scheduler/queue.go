// File: scheduler/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// runQueue is the scheduler's FIFO run queue, backed by
// github.com/eapache/queue's ring-buffer deque: the scan-from-head/
// remove-the-match access pattern below needs O(1) amortized push/pop at
// both ends.
package scheduler

import (
	"sync"

	"github.com/aoduze/sylar/fiber"
	"github.com/eapache/queue"
)

type runQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newRunQueue() *runQueue {
	return &runQueue{q: queue.New()}
}

func (rq *runQueue) push(e Entry) {
	rq.mu.Lock()
	rq.q.Add(e)
	rq.mu.Unlock()
}

func (rq *runQueue) empty() bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.q.Length() == 0
}

// selectReady scans the queue from the head for the first entry whose
// thread affinity is AnyThread or equal to threadID, skipping over (but
// not removing) entries currently bound to an EXEC fiber. It reports
// whether an affinity mismatch caused it to skip past any entry, so the
// caller can tickle another worker after releasing the lock.
func (rq *runQueue) selectReady(threadID int) (entry Entry, ok bool, skippedAffinity bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	n := rq.q.Length()
	for i := 0; i < n; i++ {
		e := rq.q.Get(i).(Entry)
		if e.Thread != AnyThread && e.Thread != threadID {
			skippedAffinity = true
			continue
		}
		if e.Fiber != nil && e.Fiber.State() == fiber.EXEC {
			continue
		}

		// Rotate the whole queue once, dropping only the match, so every
		// other entry keeps its relative order.
		for j := 0; j < n; j++ {
			x := rq.q.Remove()
			if j != i {
				rq.q.Add(x)
			}
		}
		return e, true, skippedAffinity
	}
	return Entry{}, false, skippedAffinity
}
