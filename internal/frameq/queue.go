// Package frameq hands frames from a producer goroutine to a consumer
// goroutine through a fixed-capacity FIFO. When the consumer falls
// behind, the newest frame is dropped rather than blocking the producer
// or evicting older frames.
package frameq

import (
	"sync"
	"time"
)

// DefaultCapacity matches the buffering used by the stream client.
const DefaultCapacity = 10

// Queue is a bounded FIFO of frames with a drop-newest overflow policy
// and a close/drain lifecycle. All methods are safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	cap    int
	closed bool

	enqueued uint64
	dropped  uint64
}

// New returns a Queue holding at most capacity frames. A capacity of
// zero or less falls back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends frame and returns true if there is room. When the
// queue is full or closed the frame is discarded and Enqueue returns
// false; buffered older frames are never evicted.
func (q *Queue) Enqueue(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.frames) >= q.cap {
		q.dropped++
		return false
	}
	q.frames = append(q.frames, frame)
	q.enqueued++
	q.cond.Signal()
	return true
}

// Dequeue removes and returns the oldest frame, blocking up to timeout
// for one to arrive. It returns ok=false on timeout and on a closed,
// fully drained queue. Frames buffered before Close are still returned.
func (q *Queue) Dequeue(timeout time.Duration) (frame []byte, ok bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 {
		if q.closed {
			return nil, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		// sync.Cond has no timed wait; wake ourselves at the deadline.
		t := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		t.Stop()
	}

	frame = q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

// Close marks the queue closed. Further Enqueue calls are rejected;
// consumers keep draining buffered frames, then observe closed+empty as
// end of stream.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Done reports whether the queue is closed and fully drained.
func (q *Queue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.frames) == 0
}

// Len returns the number of buffered frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Stats returns how many frames were accepted and how many were dropped
// on overflow.
func (q *Queue) Stats() (enqueued, dropped uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued, q.dropped
}
