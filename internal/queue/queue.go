package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueEmpty is returned when there is nothing to dequeue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue orders pending work in two lanes. Items pushed with high set are
// served before every regular item, regardless of when the regular items
// arrived. Within a lane, items keep their arrival order.
//
// The ordering contract lives in the two slices rather than in insertion
// positions, so Dequeue is the only place lanes are merged.
type Queue[T any] struct {
	high    []T
	regular []T

	mu     sync.RWMutex
	closed bool
	stats  Stats
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued     int64
	TotalDequeued     int64
	TotalCleared      int64
	HighPriorityCount int64
	PeakSize          int
	LastEnqueue       time.Time
	LastDequeue       time.Time
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v to the high lane when high is set, otherwise to the
// regular lane.
func (q *Queue[T]) Push(v T, high bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if high {
		q.high = append(q.high, v)
		q.stats.HighPriorityCount++
	} else {
		q.regular = append(q.regular, v)
	}

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if size := len(q.high) + len(q.regular); size > q.stats.PeakSize {
		q.stats.PeakSize = size
	}

	return nil
}

// Pop removes and returns the head of the queue: the oldest high item if
// any, otherwise the oldest regular item.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed {
		return zero, ErrQueueClosed
	}

	var v T
	switch {
	case len(q.high) > 0:
		v = q.high[0]
		q.high[0] = zero
		q.high = q.high[1:]
	case len(q.regular) > 0:
		v = q.regular[0]
		q.regular[0] = zero
		q.regular = q.regular[1:]
	default:
		return zero, ErrQueueEmpty
	}

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()

	return v, nil
}

// Len returns the number of pending items across both lanes.
func (q *Queue[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.high) + len(q.regular)
}

// Snapshot returns the pending items in the order they would be dequeued.
func (q *Queue[T]) Snapshot() []T {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]T, 0, len(q.high)+len(q.regular))
	out = append(out, q.high...)
	return append(out, q.regular...)
}

// Clear drops every pending item and reports how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.high) + len(q.regular)
	q.high = nil
	q.regular = nil
	q.stats.TotalCleared += int64(n)

	return n
}

// GetStats returns a copy of the queue statistics.
func (q *Queue[T]) GetStats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.stats
}

// Close drops pending items and rejects further pushes. Closing twice is a
// no-op.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.high = nil
	q.regular = nil

	return nil
}
