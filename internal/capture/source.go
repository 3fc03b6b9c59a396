// Package capture produces BGRA desktop images for the host streamer.
package capture

import (
	"errors"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// ErrNotReady means no new image is available this tick.
var ErrNotReady = errors.New("capture: frame not ready")

// Image is one captured frame in BGRA byte order, 4 bytes per pixel,
// rows packed without padding.
type Image struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// Valid reports whether the image is within protocol bounds and its buffer
// holds exactly Width*Height*4 bytes.
func (img Image) Valid() bool {
	if protocol.ValidateFrame(img.Width, img.Height, uint64(len(img.Pixels))) != nil {
		return false
	}
	return uint64(len(img.Pixels)) == protocol.FrameBytes(img.Width, img.Height)
}

// Source yields captured images. Implementations need not be safe for
// concurrent use.
type Source interface {
	CaptureNext() (Image, error)
}
