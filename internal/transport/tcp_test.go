package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// setupTCPPair listens on loopback and dials into it, returning both sides.
func setupTCPPair(t *testing.T) (host, viewer Transport, cleanup func()) {
	t.Helper()

	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	accepted := make(chan Transport, 1)
	acceptErr := make(chan error, 1)
	go func() {
		tr, err := ln.Accept(ctx)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- tr
	}()

	vc, err := Dial(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port())))
	if err != nil {
		cancel()
		ln.Close()
		t.Fatalf("dial: %v", err)
	}

	var hc Transport
	select {
	case hc = <-accepted:
	case err := <-acceptErr:
		cancel()
		vc.Close()
		ln.Close()
		t.Fatalf("accept: %v", err)
	case <-ctx.Done():
		cancel()
		vc.Close()
		ln.Close()
		t.Fatal("timeout waiting for accept")
	}

	return hc, vc, func() {
		cancel()
		hc.Close()
		vc.Close()
		ln.Close()
	}
}

func TestTCPTryReadWouldBlock(t *testing.T) {
	host, _, cleanup := setupTCPPair(t)
	defer cleanup()

	buf := make([]byte, 16)
	n, err := host.TryRead(buf)
	if n != 0 || !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("expected (0, ErrWouldBlock), got (%d, %v)", n, err)
	}
	if host.Closed() {
		t.Fatal("would-block must not close the transport")
	}
}

func TestTCPFrameExchange(t *testing.T) {
	host, viewer, cleanup := setupTCPPair(t)
	defer cleanup()

	hf, vf := NewFramer(host, testBackoff), NewFramer(viewer, testBackoff)

	if err := vf.Send(&protocol.CompressionRequest{Compression: protocol.CompressionH265}); err != nil {
		t.Fatal(err)
	}
	req, ok := pollUntil(t, hf, 2*time.Second).(*protocol.CompressionRequest)
	if !ok || req.Compression != protocol.CompressionH265 {
		t.Fatalf("unexpected request: %#v", req)
	}

	// A full-size test frame is larger than the socket buffers, so the
	// writer must survive would-block while the reader drains.
	sent := testFrame(640, 480, 0)
	errCh := make(chan error, 1)
	go func() { errCh <- hf.Send(sent) }()

	got, ok := pollUntil(t, vf, 5*time.Second).(*protocol.Frame)
	if !ok {
		t.Fatal("expected *protocol.Frame")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Width != 640 || got.Height != 480 || !bytes.Equal(got.Pixels, sent.Pixels) {
		t.Fatal("frame mismatch")
	}
}

func TestTCPPeerCloseIsFatal(t *testing.T) {
	host, viewer, cleanup := setupTCPPair(t)
	defer cleanup()

	host.Close()
	if !host.Closed() {
		t.Fatal("Closed() should report local close")
	}

	vf := NewFramer(viewer, testBackoff)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := vf.Poll()
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("expected ErrClosed, got %v", err)
			}
			if !viewer.Closed() {
				t.Fatal("viewer should observe closure")
			}
			return
		}
		if msg != nil {
			t.Fatalf("unexpected message %T", msg)
		}
	}
	t.Fatal("peer close never observed")
}

func TestTCPRemoteAddr(t *testing.T) {
	host, viewer, cleanup := setupTCPPair(t)
	defer cleanup()

	if host.RemoteAddr() == "" || viewer.RemoteAddr() == "" {
		t.Fatal("remote address should be set")
	}
}

func TestAcceptHonorsContext(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ln.Accept(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port()))
	ln.Close()

	_, err = Dial(context.Background(), addr)
	if !errors.Is(err, ErrConnectionRefused) {
		t.Fatalf("expected ErrConnectionRefused, got %v", err)
	}
}

func TestDialInvalidAddress(t *testing.T) {
	for _, addr := range []string{"no-port", "127.0.0.1:"} {
		_, err := Dial(context.Background(), addr)
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("Dial(%q): expected ErrInvalidAddress, got %v", addr, err)
		}
	}
}
