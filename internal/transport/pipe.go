package transport

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// PipeOptions shapes an in-memory transport pair. Zero means unlimited.
type PipeOptions struct {
	MaxRead  int // bytes returned per TryRead
	MaxWrite int // bytes accepted per TryWrite
	Capacity int // bytes buffered per direction before writes would block
}

// pipeBuf is one direction of a Pipe.
type pipeBuf struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	eof      bool // writer closed; reader sees ErrClosed once drained
	gone     bool // reader closed; writes fail
}

type pipeEnd struct {
	name   string // peer name
	in     *pipeBuf
	out    *pipeBuf
	opts   PipeOptions
	closed atomic.Bool
}

// Pipe returns two connected in-memory transports. Data written to one is
// read from the other. The limits in opts apply to both ends and make it
// possible to exercise fragmentation and partial writes deterministically.
func Pipe(opts PipeOptions) (Transport, Transport) {
	ab := &pipeBuf{capacity: opts.Capacity}
	ba := &pipeBuf{capacity: opts.Capacity}
	a := &pipeEnd{name: "pipe:b", in: ba, out: ab, opts: opts}
	b := &pipeEnd{name: "pipe:a", in: ab, out: ba, opts: opts}
	return a, b
}

func (e *pipeEnd) TryRead(p []byte) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if e.opts.MaxRead > 0 && len(p) > e.opts.MaxRead {
		p = p[:e.opts.MaxRead]
	}

	b := e.in
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		if b.eof {
			e.closed.Store(true)
			return 0, fmt.Errorf("%w: read: %w", ErrClosed, io.EOF)
		}
		return 0, ErrWouldBlock
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	if len(b.data) == 0 {
		b.data = nil
	}
	return n, nil
}

func (e *pipeEnd) TryWrite(p []byte) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	b := e.out
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gone {
		e.closed.Store(true)
		return 0, fmt.Errorf("%w: write: peer closed", ErrClosed)
	}

	n := len(p)
	if e.opts.MaxWrite > 0 && n > e.opts.MaxWrite {
		n = e.opts.MaxWrite
	}
	if b.capacity > 0 {
		space := b.capacity - len(b.data)
		if space <= 0 {
			return 0, ErrWouldBlock
		}
		n = min(n, space)
	}
	b.data = append(b.data, p[:n]...)
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (e *pipeEnd) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.out.mu.Lock()
	e.out.eof = true
	e.out.mu.Unlock()

	e.in.mu.Lock()
	e.in.gone = true
	e.in.data = nil
	e.in.mu.Unlock()
	return nil
}

func (e *pipeEnd) Closed() bool {
	return e.closed.Load()
}

func (e *pipeEnd) RemoteAddr() string {
	return e.name
}
