// Package queue implements the FIFO hand-off buffer between the UDP
// receiver and the durable writer.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/espsense/csicollect/internal/csi"
	"github.com/espsense/csicollect/internal/metrics"
)

// Policy selects what happens to a Push when a bounded queue is full.
type Policy string

const (
	// PolicyBlock makes Push wait until the consumer frees a slot.
	PolicyBlock Policy = "block"
	// PolicyDropOldest evicts the head to make room for the new item.
	PolicyDropOldest Policy = "drop-oldest"
	// PolicyDropNewest discards the incoming item.
	PolicyDropNewest Policy = "drop-newest"
)

// Valid reports whether p is a known overflow policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyBlock, PolicyDropOldest, PolicyDropNewest:
		return true
	}
	return false
}

// Queue is a FIFO buffer of datagrams with single-consumer semantics.
// Capacity 0 means unbounded, which is the default deployment choice;
// bounded capacities apply the configured overflow Policy and surface
// drops through Dropped.
//
// Every successfully enqueued item must be acknowledged with Done after
// the consumer finishes with it, regardless of processing outcome.
// Drain blocks until all enqueued items are acknowledged, which is the
// shutdown liveness guarantee: nothing accepted is lost on a clean stop.
type Queue struct {
	mu       sync.Mutex
	items    []csi.Datagram
	capacity int
	policy   Policy
	unacked  int

	dropped atomic.Uint64

	avail  chan struct{} // pulses when an item is enqueued
	space  chan struct{} // pulses when a slot frees up
	acked  chan struct{} // pulses when an item is acknowledged
	closed chan struct{}

	closeOnce sync.Once
}

// New creates a queue. capacity <= 0 yields an unbounded queue.
func New(capacity int, policy Policy) *Queue {
	if !policy.Valid() {
		policy = PolicyBlock
	}
	return &Queue{
		capacity: capacity,
		policy:   policy,
		avail:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		acked:    make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func pulse(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// drop records one discarded datagram, both locally and on the exported
// counter, so saturation is never silent.
func (q *Queue) drop() {
	q.dropped.Add(1)
	metrics.QueueDroppedTotal.WithLabelValues(string(q.policy)).Inc()
}

// Push enqueues one datagram. It returns false when the item was
// discarded, either by overflow policy or because the queue is closed.
func (q *Queue) Push(d csi.Datagram) bool {
	for {
		select {
		case <-q.closed:
			q.drop()
			return false
		default:
		}

		q.mu.Lock()
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, d)
			q.unacked++
			q.mu.Unlock()
			pulse(q.avail)
			return true
		}

		switch q.policy {
		case PolicyDropOldest:
			// The evicted head was never handed to the consumer, so it
			// must not stay in the drain accounting.
			q.items = q.items[1:]
			q.unacked--
			q.items = append(q.items, d)
			q.unacked++
			q.mu.Unlock()
			q.drop()
			pulse(q.avail)
			pulse(q.acked)
			return true
		case PolicyDropNewest:
			q.mu.Unlock()
			q.drop()
			return false
		default: // PolicyBlock
			q.mu.Unlock()
			select {
			case <-q.space:
			case <-q.closed:
				q.drop()
				return false
			}
		}
	}
}

// Pop dequeues the oldest datagram, waiting up to timeout for one to
// arrive. The second return value is false when the wait expired.
func (q *Queue) Pop(timeout time.Duration) (csi.Datagram, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			pulse(q.space)
			return d, true
		}
		q.mu.Unlock()

		select {
		case <-q.avail:
		case <-deadline.C:
			return csi.Datagram{}, false
		}
	}
}

// Done acknowledges one previously popped item.
func (q *Queue) Done() {
	q.mu.Lock()
	if q.unacked > 0 {
		q.unacked--
	}
	q.mu.Unlock()
	pulse(q.acked)
}

// Drain blocks until every enqueued item has been acknowledged, or ctx
// expires.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		n := q.unacked
		q.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-q.acked:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases any producer blocked in Push. Items already enqueued
// remain poppable.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many datagrams the overflow policy discarded.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Capacity returns the configured bound, 0 for unbounded.
func (q *Queue) Capacity() int { return q.capacity }
