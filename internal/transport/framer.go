package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// Framer reads and writes whole protocol messages over a Transport.
//
// Poll is meant for a single reader goroutine. Send may be called from any
// goroutine; writes are serialized so messages never interleave on the wire.
type Framer struct {
	t       Transport
	backoff Backoff

	header [protocol.HeaderSize]byte
	body   [protocol.MouseMoveFixedSize - protocol.HeaderSize]byte

	writeMu sync.Mutex

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

// NewFramer wraps t. A zero Backoff selects DefaultBackoff.
func NewFramer(t Transport, b Backoff) *Framer {
	return &Framer{t: t, backoff: b.withDefaults()}
}

// Transport returns the underlying transport.
func (f *Framer) Transport() Transport {
	return f.t
}

// Poll returns the next message, or (nil, nil) if no bytes are pending.
// Once the first header byte arrives the rest of the message is read with
// backoff retries. Any error other than would-block is fatal: the stream's
// framing can no longer be trusted.
func (f *Framer) Poll() (any, error) {
	n, err := f.t.TryRead(f.header[:])
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return nil, nil
		}
		return nil, err
	}
	if n < len(f.header) {
		if err := ReadFull(f.t, f.header[n:], f.backoff); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	f.bytesIn.Add(protocol.HeaderSize)

	h, err := protocol.ParseHeader(f.header[:])
	if err != nil {
		return nil, err
	}

	body := f.body[:protocol.BodySize(h.Type)]
	if err := ReadFull(f.t, body, f.backoff); err != nil {
		return nil, fmt.Errorf("read %s: %w", h.Type, err)
	}
	f.bytesIn.Add(uint64(len(body)))

	msg, payloadLen, err := protocol.DecodeFixed(h, body)
	if err != nil {
		return nil, err
	}
	if payloadLen > 0 {
		payload := make([]byte, payloadLen)
		if err := ReadFull(f.t, payload, f.backoff); err != nil {
			return nil, fmt.Errorf("read %s payload: %w", h.Type, err)
		}
		f.bytesIn.Add(uint64(payloadLen))
		protocol.AttachPayload(msg, payload)
	}
	return msg, nil
}

// Send writes msg completely, retrying partial writes.
func (f *Framer) Send(msg any) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return protocol.WriteMessage(transportWriter{f}, msg)
}

// BytesIn and BytesOut report the totals moved through this framer.
func (f *Framer) BytesIn() uint64  { return f.bytesIn.Load() }
func (f *Framer) BytesOut() uint64 { return f.bytesOut.Load() }

// transportWriter lets protocol.WriteMessage drive WriteAll.
type transportWriter struct{ f *Framer }

func (w transportWriter) Write(p []byte) (int, error) {
	if err := WriteAll(w.f.t, p, w.f.backoff); err != nil {
		return 0, err
	}
	w.f.bytesOut.Add(uint64(len(p)))
	return len(p), nil
}
