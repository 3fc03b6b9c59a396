package input

import (
	"fmt"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// Sender writes input events to the host. Sends are fire-and-forget: once
// the bytes are flushed there is no acknowledgement. Safe for concurrent
// use; the framer serializes writes with outgoing frames.
type Sender struct {
	f *transport.Framer
}

func NewSender(f *transport.Framer) *Sender {
	return &Sender{f: f}
}

func (s *Sender) send(msg any) error {
	if err := s.f.Send(msg); err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

func (s *Sender) Move(dx, dy int32) error { return s.send(NewMouseMove(dx, dy)) }

func (s *Sender) MoveTo(x, y int32) error { return s.send(NewMouseMoveTo(x, y)) }

func (s *Sender) Click(button protocol.MouseButton, pressed bool) error {
	return s.send(NewMouseClick(button, pressed))
}

func (s *Sender) Scroll(dx, dy int32) error { return s.send(NewMouseScroll(dx, dy)) }

// Send writes an already-built input message.
func (s *Sender) Send(msg any) error {
	if !IsInput(msg) {
		return fmt.Errorf("send input: %T is not an input message", msg)
	}
	return s.send(msg)
}
