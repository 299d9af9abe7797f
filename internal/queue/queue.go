// Package queue implements the bounded, priority-ordered send queue that
// sits between Send() callers and the protocol FSM's single dispatch loop.
//
// There is no teacher analog for a generic bounded priority queue in the
// example pack; github.com/alitto/pond/v2 (a worker pool) bounds
// concurrency, not queue depth, and has no caller-supplied ordering hook, so
// it cannot serve this ordering contract. This is a small, textbook
// container/heap wrapper rather than an ambient concern needing a library.
package queue

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// ErrFull is returned by Push when the queue is at capacity.
var ErrFull = errors.New("buffer overflow")

// Queue is a bounded min-heap of *Entry keyed on (Priority, EnqueuedAt).
// Safe for concurrent use: Push is called from arbitrary Send() callers,
// Pop from the FSM's single dispatch loop.
type Queue struct {
	mu       sync.Mutex
	h        entryHeap
	capacity int
}

// New creates a Queue bounded at capacity entries.
func New(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Push enqueues e, or returns ErrFull if the queue is already at capacity.
func (q *Queue) Push(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) >= q.capacity {
		return ErrFull
	}
	heap.Push(&q.h, e)
	q.reportDepth()
	return nil
}

// Pop removes and returns the next entry in (Priority, EnqueuedAt) order,
// skipping over any entries already Cancelled. Returns nil if the queue has
// no eligible entry left.
func (q *Queue) Pop() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) > 0 {
		e, _ := heap.Pop(&q.h).(*Entry)
		if e.Cancelled() {
			continue
		}
		q.reportDepth()
		return e
	}
	q.reportDepth()
	return nil
}

// Len returns the current number of queued entries, cancelled or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// PriorityCounts returns the current occupancy per priority, for metrics.
func (q *Queue) PriorityCounts() map[protocol.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[protocol.Priority]int, len(q.h))
	for _, e := range q.h {
		counts[e.Priority]++
	}
	return counts
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
