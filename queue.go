package dualmix

import "sync/atomic"

// sampleQueue is a bounded single-producer single-consumer ring of float32
// samples. The producer is one capture callback, the consumer is one render
// callback; both sides are wait-free. The control thread never touches a
// queue's indices, it only creates queues and unhooks them from a bus.
type sampleQueue struct {
	buf  []float32
	mask uint64
	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned
}

// newSampleQueue creates a queue holding at least capacity samples,
// rounded up to a power of two.
func newSampleQueue(capacity int) *sampleQueue {
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	return &sampleQueue{
		buf:  make([]float32, size),
		mask: size - 1,
	}
}

// write appends as many samples as fit and returns how many were written.
// When the queue is full the newest samples are dropped; stale audio is
// worse than a short gap.
func (q *sampleQueue) write(p []float32) int {
	head := q.head.Load()
	tail := q.tail.Load()
	free := uint64(len(q.buf)) - (head - tail)
	n := uint64(len(p))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		q.buf[(head+i)&q.mask] = p[i]
	}
	q.head.Store(head + n)
	return int(n)
}

// read fills p with up to len(p) samples and returns how many were read.
func (q *sampleQueue) read(p []float32) int {
	head := q.head.Load()
	tail := q.tail.Load()
	avail := head - tail
	n := uint64(len(p))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		p[i] = q.buf[(tail+i)&q.mask]
	}
	q.tail.Store(tail + n)
	return int(n)
}

// buffered returns the number of samples currently queued.
func (q *sampleQueue) buffered() int {
	return int(q.head.Load() - q.tail.Load())
}
