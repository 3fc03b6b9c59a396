package capture

import (
	"fmt"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// Test pattern dimensions used by --test runs.
const (
	TestWidth  = 640
	TestHeight = 480
)

// TestPattern generates a deterministic gradient: red follows x, green
// follows y, blue is the frame index, alpha is opaque.
type TestPattern struct {
	Width, Height uint32
	frame         int
}

// NewTestPattern returns a pattern source at the default test size.
func NewTestPattern() *TestPattern {
	return &TestPattern{Width: TestWidth, Height: TestHeight}
}

func (p *TestPattern) CaptureNext() (Image, error) {
	img := Image{Width: p.Width, Height: p.Height}
	img.Pixels = make([]byte, protocol.FrameBytes(p.Width, p.Height))
	fillPattern(img, p.frame)
	p.frame++
	return img, nil
}

// Frames returns how many images have been produced.
func (p *TestPattern) Frames() int { return p.frame }

func fillPattern(img Image, frame int) {
	w, h := int(img.Width), int(img.Height)
	blue := byte(frame % 256)
	for y := range h {
		green := byte(y * 255 / h)
		row := img.Pixels[y*w*4 : (y+1)*w*4]
		for x := range w {
			px := row[x*4 : x*4+4]
			px[0] = blue
			px[1] = green
			px[2] = byte(x * 255 / w)
			px[3] = 255
		}
	}
}

// VerifyTestFrame checks a frame received in test mode: the size must
// match exactly and the first pixel must be opaque.
func VerifyTestFrame(width, height uint32, pixels []byte) error {
	want := protocol.FrameBytes(width, height)
	if uint64(len(pixels)) != want {
		return fmt.Errorf("frame %dx%d: got %d bytes, want %d", width, height, len(pixels), want)
	}
	if len(pixels) < 4 || pixels[3] != 255 {
		return fmt.Errorf("frame %dx%d: pixel (0,0) alpha is not 255", width, height)
	}
	return nil
}
