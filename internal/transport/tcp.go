package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// PollInterval bounds how long a single TryRead or TryWrite on a TCP
// transport may wait before reporting ErrWouldBlock.
var PollInterval = time.Millisecond

// tcpTransport adapts a blocking net.Conn to the non-blocking Transport
// contract by arming a short deadline before every call. A deadline that
// fires leaves a TCP conn usable, so the next call simply re-arms it.
type tcpTransport struct {
	conn      net.Conn
	poll      time.Duration
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewTCP wraps an established connection.
func NewTCP(conn net.Conn) Transport {
	if tc, ok := conn.(*net.TCPConn); ok {
		// Frames are written in two parts (header, payload); don't let
		// Nagle hold the header back.
		tc.SetNoDelay(true)
	}
	return &tcpTransport{conn: conn, poll: PollInterval}
}

func (t *tcpTransport) TryRead(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	t.conn.SetReadDeadline(time.Now().Add(t.poll))
	n, err := t.conn.Read(p)
	if n > 0 {
		return n, nil
	}
	return 0, t.mapErr("read", err)
}

func (t *tcpTransport) TryWrite(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.poll))
	n, err := t.conn.Write(p)
	if err == nil {
		return n, nil
	}
	return n, t.mapErr("write", err)
}

// mapErr translates a net.Conn error into ErrWouldBlock or a wrapped
// ErrClosed. Anything other than a deadline is treated as connection loss.
func (t *tcpTransport) mapErr(op string, err error) error {
	if err == nil {
		return ErrWouldBlock
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrWouldBlock
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrWouldBlock
	}
	t.closed.Store(true)
	return fmt.Errorf("%w: %s: %w", ErrClosed, op, err)
}

// Close shuts down the write side first so the peer sees an orderly FIN
// after the last flushed frame, then releases the socket.
func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if tc, ok := t.conn.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *tcpTransport) Closed() bool {
	return t.closed.Load()
}

func (t *tcpTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
