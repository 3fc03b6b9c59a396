package transport

import (
	"context"
	"errors"
)

var (
	// ErrWouldBlock means no data (read) or no buffer space (write) is
	// available right now. Callers retry later.
	ErrWouldBlock = errors.New("operation would block")

	// ErrClosed means the peer closed the connection, it was reset, or it
	// was closed locally. It is always fatal for the session.
	ErrClosed = errors.New("transport closed")

	// ErrStalled means a ReadFull or WriteAll made no progress for the
	// backoff's stall window.
	ErrStalled = errors.New("transport stalled")
)

// Transport is a bidirectional byte stream with non-blocking semantics.
// Both endpoints of a session are symmetric.
//
// TryRead returns (n>0, nil), (0, ErrWouldBlock) or (0, ErrClosed).
// TryWrite may accept only part of p; it returns the number of bytes
// accepted and ErrWouldBlock if the rest could not be written yet.
type Transport interface {
	TryRead(p []byte) (int, error)
	TryWrite(p []byte) (int, error)
	Close() error
	Closed() bool
	RemoteAddr() string
}

// Listener accepts a single incoming Transport.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Port() int
	Close() error
}
