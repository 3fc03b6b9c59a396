package protocol

import (
	"fmt"
	"strings"
)

// All integer fields are little-endian. Structures are packed; the byte
// layout below is the wire format.

// Header: [4B message_type][4B fixed_size]
const HeaderSize = 8

// Frame validation limits.
const (
	MaxFrameDimension = 10000
	MaxFrameDataSize  = 100_000_000
	BytesPerPixel     = 4 // BGRA
)

// MessageType identifies the type of a framed message.
type MessageType uint32

const (
	MsgFrame              MessageType = 1
	MsgMouseMove          MessageType = 2
	MsgMouseClick         MessageType = 3
	MsgMouseScroll        MessageType = 4
	MsgCompressedFrame    MessageType = 5
	MsgCompressionRequest MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MsgFrame:
		return "frame"
	case MsgMouseMove:
		return "mouse_move"
	case MsgMouseClick:
		return "mouse_click"
	case MsgMouseScroll:
		return "mouse_scroll"
	case MsgCompressedFrame:
		return "compressed_frame"
	case MsgCompressionRequest:
		return "compression_request"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Fixed message sizes, header included, payload excluded. The header's size
// field carries exactly this value.
const (
	FrameFixedSize              = HeaderSize + 12 // width, height, dataSize
	CompressedFrameFixedSize    = HeaderSize + 16 // width, height, compressedSize, isKeyframe
	CompressionRequestFixedSize = HeaderSize + 4
	MouseMoveFixedSize          = HeaderSize + 20 // dx, dy, absolute, x, y
	MouseClickFixedSize         = HeaderSize + 8
	MouseScrollFixedSize        = HeaderSize + 8
)

// FixedSize returns the fixed size of a message type, or false if the type
// is not recognized.
func FixedSize(t MessageType) (int, bool) {
	switch t {
	case MsgFrame:
		return FrameFixedSize, true
	case MsgCompressedFrame:
		return CompressedFrameFixedSize, true
	case MsgCompressionRequest:
		return CompressionRequestFixedSize, true
	case MsgMouseMove:
		return MouseMoveFixedSize, true
	case MsgMouseClick:
		return MouseClickFixedSize, true
	case MsgMouseScroll:
		return MouseScrollFixedSize, true
	default:
		return 0, false
	}
}

// Compression is the negotiated frame compression mode.
type Compression uint32

const (
	CompressionNone Compression = 0
	CompressionH264 Compression = 1
	CompressionAV1  Compression = 2
	CompressionH265 Compression = 3
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionH264:
		return "h264"
	case CompressionAV1:
		return "av1"
	case CompressionH265:
		return "h265"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(c))
	}
}

// Valid reports whether c is one of the defined compression modes.
func (c Compression) Valid() bool {
	switch c {
	case CompressionNone, CompressionH264, CompressionAV1, CompressionH265:
		return true
	}
	return false
}

// ParseCompression maps a flag value such as "h265" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return CompressionNone, nil
	case "h264", "avc":
		return CompressionH264, nil
	case "h265", "hevc":
		return CompressionH265, nil
	case "av1":
		return CompressionAV1, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q (want none, h264, h265 or av1)", s)
	}
}

// MouseButton identifies a mouse button. Values are bit flags on the wire.
type MouseButton uint32

const (
	ButtonLeft   MouseButton = 1
	ButtonRight  MouseButton = 2
	ButtonMiddle MouseButton = 4
)

func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return fmt.Sprintf("button(%d)", uint32(b))
	}
}
