package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Screen captures a physical display.
type Screen struct {
	// Display selects the display index; a negative value picks the
	// primary display (the one whose bounds start at the origin).
	Display int
}

// NewScreen returns a Screen that captures the primary display.
func NewScreen() *Screen {
	return &Screen{Display: -1}
}

func (s *Screen) bounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, errors.New("capture: no active displays")
	}
	if s.Display >= 0 {
		if s.Display >= n {
			return image.Rectangle{}, fmt.Errorf("capture: display %d out of range (%d active)", s.Display, n)
		}
		return screenshot.GetDisplayBounds(s.Display), nil
	}
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		if b.Min.X == 0 && b.Min.Y == 0 {
			return b, nil
		}
	}
	return screenshot.GetDisplayBounds(0), nil
}

func (s *Screen) CaptureNext() (Image, error) {
	b, err := s.bounds()
	if err != nil {
		return Image{}, err
	}
	rgba, err := screenshot.CaptureRect(b)
	if err != nil {
		return Image{}, fmt.Errorf("capture display: %w", err)
	}
	return FromRGBA(rgba), nil
}

// FromRGBA converts an RGBA image into a packed BGRA Image.
func FromRGBA(src *image.RGBA) Image {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	img := Image{Width: uint32(w), Height: uint32(h), Pixels: make([]byte, w*h*4)}
	for y := range h {
		in := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := img.Pixels[y*w*4 : (y+1)*w*4]
		for i := 0; i < len(in); i += 4 {
			out[i+0] = in[i+2]
			out[i+1] = in[i+1]
			out[i+2] = in[i+0]
			out[i+3] = in[i+3]
		}
	}
	return img
}
