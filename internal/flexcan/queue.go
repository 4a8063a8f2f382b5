package flexcan

import (
	"sync/atomic"

	"github.com/kstaniek/go-flexcan-media/internal/can"
)

// QueueCap is the fixed capacity of each per-controller receive queue.
// Queues live for the life of the process and are never resized.
const QueueCap = 40

// frameQueue is a bounded single-producer/single-consumer ring. The sole
// producer is the controller's receive interrupt; the sole consumer is
// the mainline Read. head and tail are free-running counters; occupancy
// is tail-head. The atomic stores publish slot contents to the other
// side, which is the synchronization the source design left implicit.
type frameQueue struct {
	buf  [QueueCap]can.Frame
	head atomic.Uint64 // advanced by the consumer only
	tail atomic.Uint64 // advanced by the producer only
}

// push appends a frame; it reports false when the queue is full. Producer
// side only.
func (q *frameQueue) push(fr can.Frame) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() == QueueCap {
		return false
	}
	q.buf[tail%QueueCap] = fr
	q.tail.Store(tail + 1)
	return true
}

// pop removes the oldest frame. Consumer side only.
func (q *frameQueue) pop() (can.Frame, bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return can.Frame{}, false
	}
	fr := q.buf[head%QueueCap]
	q.head.Store(head + 1)
	return fr, true
}

// free reports remaining capacity. Producer side only (the consumer can
// only make the answer conservative).
func (q *frameQueue) free() int {
	return QueueCap - int(q.tail.Load()-q.head.Load())
}
