// Package input carries mouse events from the viewer to the host.
package input

import (
	"github.com/mrdesktop/mrdesktop/internal/metrics"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// NewMouseMove returns a relative move.
func NewMouseMove(dx, dy int32) *protocol.MouseMove {
	return &protocol.MouseMove{DeltaX: dx, DeltaY: dy}
}

// NewMouseMoveTo returns an absolute move to screen coordinates (x, y).
func NewMouseMoveTo(x, y int32) *protocol.MouseMove {
	return &protocol.MouseMove{Absolute: true, X: x, Y: y}
}

func NewMouseClick(button protocol.MouseButton, pressed bool) *protocol.MouseClick {
	return &protocol.MouseClick{Button: button, Pressed: pressed}
}

func NewMouseScroll(dx, dy int32) *protocol.MouseScroll {
	return &protocol.MouseScroll{DeltaX: dx, DeltaY: dy}
}

// Handler receives input events on the host. Injecting them into the OS
// is up to the implementation.
type Handler interface {
	OnMouseMove(dx, dy int32, absolute bool, x, y int32)
	OnMouseClick(button protocol.MouseButton, pressed bool)
	OnMouseScroll(dx, dy int32)
}

// IsInput reports whether msg is one of the input message types.
func IsInput(msg any) bool {
	switch msg.(type) {
	case *protocol.MouseMove, *protocol.MouseClick, *protocol.MouseScroll:
		return true
	}
	return false
}

// Dispatch delivers msg to h if it is an input message and reports whether
// it was one. A nil handler consumes input messages without effect.
func Dispatch(h Handler, msg any) bool {
	switch m := msg.(type) {
	case *protocol.MouseMove:
		metrics.InputEvent(protocol.MsgMouseMove.String())
		if h != nil {
			h.OnMouseMove(m.DeltaX, m.DeltaY, m.Absolute, m.X, m.Y)
		}
	case *protocol.MouseClick:
		metrics.InputEvent(protocol.MsgMouseClick.String())
		if h != nil {
			h.OnMouseClick(m.Button, m.Pressed)
		}
	case *protocol.MouseScroll:
		metrics.InputEvent(protocol.MsgMouseScroll.String())
		if h != nil {
			h.OnMouseScroll(m.DeltaX, m.DeltaY)
		}
	default:
		return false
	}
	return true
}
