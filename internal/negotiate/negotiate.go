// Package negotiate settles the session's compression mode. The viewer sends
// exactly one CompressionRequest right after connecting; the host waits a
// bounded time for it and falls back to uncompressed frames on anything
// unexpected.
package negotiate

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/metrics"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// DefaultTimeout is how long the host waits for the viewer's request.
const DefaultTimeout = 2 * time.Second

const pollInterval = time.Millisecond

// State of a Negotiator.
type State int

const (
	AwaitingRequest State = iota
	Negotiated
)

func (s State) String() string {
	if s == Negotiated {
		return "negotiated"
	}
	return "awaiting_request"
}

// Outcome labels for how the mode was chosen.
const (
	OutcomeRequested   = "requested"
	OutcomeTimeout     = "timeout"
	OutcomeGarbled     = "garbled"
	OutcomeUnknownMode = "unknown_mode"
	OutcomeUnexpected  = "unexpected_message"
)

// Negotiator is the host side of compression negotiation. The mode is
// fixed once Await returns; later calls report the same mode.
type Negotiator struct {
	state   State
	mode    protocol.Compression
	outcome string
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Negotiator {
	return &Negotiator{log: log}
}

func (n *Negotiator) State() State               { return n.state }
func (n *Negotiator) Mode() protocol.Compression { return n.mode }

// Outcome reports how the mode was decided (one of the Outcome* labels).
func (n *Negotiator) Outcome() string { return n.outcome }

// Await polls f for the viewer's CompressionRequest for at most timeout
// (DefaultTimeout if zero). A missing, garbled or unrecognized request
// yields CompressionNone. Only transport closure is returned as an error.
func (n *Negotiator) Await(f *transport.Framer, timeout time.Duration) (protocol.Compression, error) {
	if n.state == Negotiated {
		return n.mode, nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	mode, outcome, err := n.await(f, timeout)
	if err != nil {
		return protocol.CompressionNone, err
	}
	n.mode, n.outcome, n.state = mode, outcome, Negotiated
	metrics.Negotiated(mode.String(), outcome)

	if outcome == OutcomeRequested {
		n.log.Info().Str("compression", mode.String()).Msg("compression negotiated")
	} else {
		n.log.Warn().Str("reason", outcome).Msg("no usable compression request, using uncompressed frames")
	}
	return mode, nil
}

func (n *Negotiator) await(f *transport.Framer, timeout time.Duration) (protocol.Compression, string, error) {
	deadline := time.Now().Add(timeout)
	for {
		msg, err := f.Poll()
		switch {
		case err != nil && errors.Is(err, transport.ErrClosed):
			return protocol.CompressionNone, "", fmt.Errorf("negotiate: %w", err)
		case err != nil:
			n.log.Debug().Err(err).Msg("garbled compression request")
			if errors.Is(err, protocol.ErrUnknownMessage) || errors.Is(err, protocol.ErrSizeMismatch) {
				// Only the header was consumed. The request is a fixed-size
				// unit, so drop its body too or the next reader starts mid-message.
				rest := protocol.CompressionRequestFixedSize - protocol.HeaderSize
				if derr := discard(f.Transport(), rest, deadline); derr != nil {
					return protocol.CompressionNone, "", derr
				}
			}
			return protocol.CompressionNone, OutcomeGarbled, nil
		case msg != nil:
			req, ok := msg.(*protocol.CompressionRequest)
			if !ok {
				n.log.Debug().Str("type", fmt.Sprintf("%T", msg)).Msg("expected compression request")
				return protocol.CompressionNone, OutcomeUnexpected, nil
			}
			if !req.Compression.Valid() {
				n.log.Debug().Uint32("value", uint32(req.Compression)).Msg("unknown compression value")
				return protocol.CompressionNone, OutcomeUnknownMode, nil
			}
			return req.Compression, OutcomeRequested, nil
		}
		if time.Now().After(deadline) {
			return protocol.CompressionNone, OutcomeTimeout, nil
		}
		time.Sleep(pollInterval)
	}
}

// discard reads and drops up to n bytes from t, giving up quietly at
// deadline. Only closure is an error.
func discard(t transport.Transport, n int, deadline time.Time) error {
	buf := make([]byte, n)
	for n > 0 {
		got, err := t.TryRead(buf[:n])
		n -= got
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrWouldBlock):
			if time.Now().After(deadline) {
				return nil
			}
			time.Sleep(pollInterval)
		default:
			return fmt.Errorf("negotiate: %w", err)
		}
	}
	return nil
}

// Request sends the viewer's single compression request.
func Request(f *transport.Framer, mode protocol.Compression) error {
	if err := f.Send(&protocol.CompressionRequest{Compression: mode}); err != nil {
		return fmt.Errorf("send compression request: %w", err)
	}
	return nil
}
