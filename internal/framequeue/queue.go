// Package framequeue hands decoded frames from the viewer's receive worker
// to the consumer without ever blocking the receiver.
package framequeue

import (
	"context"
	"sync"
)

// DefaultSlots is the number of frames held before the oldest is evicted.
const DefaultSlots = 4

// DefaultMaxBytes caps the pixel bytes held across all slots (about four
// 4K frames).
const DefaultMaxBytes = 4 * 3840 * 2160 * 4

// Frame is one decoded BGRA image ready for display.
type Frame struct {
	Width      uint32
	Height     uint32
	Pixels     []byte
	Compressed bool // arrived as a CompressedFrame
	Keyframe   bool
	Seq        uint64 // receive order, starting at 1
}

// Queue is a bounded ring of frames. When full, by slot count or by bytes,
// the oldest frames are evicted: a lagging consumer sees the newest image.
//
// Queue is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	frames   []Frame
	head     int // index of next write position
	count    int
	size     int // pixel bytes stored
	maxSize  int
	capacity int
	dropped  uint64
	closed   bool

	ready chan struct{} // signalled (non-blocking) on every push
	done  chan struct{} // closed by Close
}

// New creates a queue with the given slot count and byte limit. Values
// <= 0 select the defaults.
func New(slots, maxBytes int) *Queue {
	if slots <= 0 {
		slots = DefaultSlots
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Queue{
		frames:   make([]Frame, slots),
		maxSize:  maxBytes,
		capacity: slots,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push adds f, evicting older frames as needed, and returns how many were
// evicted. Pushing to a closed queue discards f.
func (q *Queue) Push(f Frame) int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	evicted := 0
	for q.count > 0 && q.size+len(f.Pixels) > q.maxSize {
		q.evictOldest()
		evicted++
	}
	if q.count >= q.capacity {
		q.evictOldest()
		evicted++
	}
	q.frames[q.head] = f
	q.head = (q.head + 1) % q.capacity
	q.count++
	q.size += len(f.Pixels)
	q.dropped += uint64(evicted)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

// tail returns the index of the oldest frame. Caller must hold q.mu and
// ensure q.count > 0.
func (q *Queue) tail() int {
	return (q.head - q.count + q.capacity) % q.capacity
}

func (q *Queue) evictOldest() {
	t := q.tail()
	q.size -= len(q.frames[t].Pixels)
	q.frames[t] = Frame{}
	q.count--
}

// Pop removes and returns the oldest frame, if any.
func (q *Queue) Pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Frame{}, false
	}
	t := q.tail()
	f := q.frames[t]
	q.frames[t] = Frame{}
	q.count--
	q.size -= len(f.Pixels)
	return f, true
}

// Next blocks until a frame is available and returns it. It returns false
// once the queue is closed and drained, or when ctx ends.
func (q *Queue) Next(ctx context.Context) (Frame, bool) {
	for {
		if f, ok := q.Pop(); ok {
			return f, true
		}
		select {
		case <-q.ready:
		case <-q.done:
			// Frames pushed before Close are still delivered.
			return q.Pop()
		case <-ctx.Done():
			return Frame{}, false
		}
	}
}

// Close marks the end of the stream. Frames already queued stay available.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the total number of evicted frames.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
