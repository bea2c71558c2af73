// Package queue buffers outbound messages while the gateway connection
// is down, for in-order replay once it comes back.
package queue

import (
	"sync"
	"time"
)

// Message is a single buffered outbound payload.
type Message struct {
	ID         uint64    // monotonically increasing per queue
	Payload    []byte
	EnqueuedAt time.Time
}

// Queue is a fixed-capacity FIFO ring. Enqueuing past capacity silently
// evicts the oldest entry; eviction is counted but never reported as an
// error.
type Queue struct {
	mu       sync.Mutex
	items    []Message
	head     int // index of oldest entry
	count    int
	capacity int
	nextID   uint64
	dropped  uint64
}

// New creates a queue with the given capacity. Capacities below 1 are
// treated as 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:    make([]Message, capacity),
		capacity: capacity,
	}
}

// Enqueue buffers a payload, evicting the oldest entry when full, and
// returns the stored message.
func (q *Queue) Enqueue(payload []byte) Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		// Overwrite the oldest slot.
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.dropped++
	}

	q.nextID++
	msg := Message{
		ID:         q.nextID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	tail := (q.head + q.count) % q.capacity
	q.items[tail] = msg
	q.count++

	return msg
}

// Flush transmits buffered messages strictly in enqueue order. Each
// message is removed only after transmit returns nil; on the first
// error the failed entry and the unsent tail stay queued, so a later
// flush resumes where this one stopped. Returns the number sent and
// the error that stopped the flush, if any.
func (q *Queue) Flush(transmit func(Message) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sent := 0
	for q.count > 0 {
		msg := q.items[q.head]
		if err := transmit(msg); err != nil {
			return sent, err
		}
		q.items[q.head] = Message{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		sent++
	}
	return sent, nil
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Clear removes all buffered messages and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.count
	q.items = make([]Message, q.capacity)
	q.head = 0
	q.count = 0
	return removed
}

// Dropped returns the total number of messages evicted by overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Snapshot returns a copy of the buffered messages in enqueue order.
func (q *Queue) Snapshot() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, 0, q.count)
	for i := 0; i < q.count; i++ {
		out = append(out, q.items[(q.head+i)%q.capacity])
	}
	return out
}
