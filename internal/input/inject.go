package input

import (
	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// LogInjector is a Handler that only logs events. It is the host's default
// when no OS injection backend is wired in.
type LogInjector struct {
	Log zerolog.Logger
}

func (l LogInjector) OnMouseMove(dx, dy int32, absolute bool, x, y int32) {
	if absolute {
		l.Log.Debug().Int32("x", x).Int32("y", y).Msg("mouse move to")
		return
	}
	l.Log.Debug().Int32("dx", dx).Int32("dy", dy).Msg("mouse move")
}

func (l LogInjector) OnMouseClick(button protocol.MouseButton, pressed bool) {
	l.Log.Debug().Stringer("button", button).Bool("pressed", pressed).Msg("mouse click")
}

func (l LogInjector) OnMouseScroll(dx, dy int32) {
	l.Log.Debug().Int32("dx", dx).Int32("dy", dy).Msg("mouse scroll")
}
