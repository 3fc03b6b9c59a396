package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrSizeMismatch   = errors.New("declared size does not match message type")
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrShortMessage   = errors.New("message truncated")
	ErrTrailingBytes  = errors.New("trailing bytes after message")
)

var le = binary.LittleEndian

// Header precedes every message on the wire.
type Header struct {
	Type MessageType
	Size uint32
}

// --- Message types ---

// Frame carries raw BGRA pixels. DataSize on the wire is len(Pixels).
type Frame struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// CompressedFrame carries one encoded video packet in the negotiated format.
type CompressedFrame struct {
	Width    uint32
	Height   uint32
	Keyframe bool
	Data     []byte
}

type CompressionRequest struct {
	Compression Compression
}

// MouseMove is relative (DeltaX/DeltaY) unless Absolute is set, in which
// case X/Y are screen coordinates.
type MouseMove struct {
	DeltaX   int32
	DeltaY   int32
	Absolute bool
	X        int32
	Y        int32
}

type MouseClick struct {
	Button  MouseButton
	Pressed bool
}

type MouseScroll struct {
	DeltaX int32
	DeltaY int32
}

// FrameBytes returns the size of a BGRA buffer with the given dimensions.
func FrameBytes(width, height uint32) uint64 {
	return uint64(width) * uint64(height) * BytesPerPixel
}

// ValidateFrame checks frame dimensions and declared payload size against
// the protocol limits. A violation means the message is not a frame at all.
func ValidateFrame(width, height uint32, size uint64) error {
	if width == 0 || height == 0 || width > MaxFrameDimension || height > MaxFrameDimension {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, width, height)
	}
	if size > MaxFrameDataSize {
		return fmt.Errorf("%w: data size %d exceeds %d", ErrInvalidFrame, size, MaxFrameDataSize)
	}
	return nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func putHeader(b []byte, t MessageType, size int) {
	le.PutUint32(b[0:4], uint32(t))
	le.PutUint32(b[4:8], uint32(size))
}

// --- Encoding ---

// WriteMessage writes a message (header, fixed fields, payload) to w.
//
// Header and fixed fields are assembled in a stack buffer and written in one
// call. Frame payloads are written separately so multi-megabyte pixel
// buffers are never copied.
func WriteMessage(w io.Writer, msg any) error {
	var scratch [MouseMoveFixedSize]byte
	n, payload, err := encodeFixed(scratch[:], msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(scratch[:n]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// encodeFixed writes the header and fixed fields of msg into b and returns
// the number of bytes used plus the variable payload, if any.
func encodeFixed(b []byte, msg any) (int, []byte, error) {
	switch m := msg.(type) {
	case *Frame:
		if err := ValidateFrame(m.Width, m.Height, uint64(len(m.Pixels))); err != nil {
			return 0, nil, err
		}
		putHeader(b, MsgFrame, FrameFixedSize)
		le.PutUint32(b[8:12], m.Width)
		le.PutUint32(b[12:16], m.Height)
		le.PutUint32(b[16:20], uint32(len(m.Pixels)))
		return FrameFixedSize, m.Pixels, nil

	case *CompressedFrame:
		if err := ValidateFrame(m.Width, m.Height, uint64(len(m.Data))); err != nil {
			return 0, nil, err
		}
		putHeader(b, MsgCompressedFrame, CompressedFrameFixedSize)
		le.PutUint32(b[8:12], m.Width)
		le.PutUint32(b[12:16], m.Height)
		le.PutUint32(b[16:20], uint32(len(m.Data)))
		le.PutUint32(b[20:24], boolU32(m.Keyframe))
		return CompressedFrameFixedSize, m.Data, nil

	case *CompressionRequest:
		putHeader(b, MsgCompressionRequest, CompressionRequestFixedSize)
		le.PutUint32(b[8:12], uint32(m.Compression))
		return CompressionRequestFixedSize, nil, nil

	case *MouseMove:
		putHeader(b, MsgMouseMove, MouseMoveFixedSize)
		le.PutUint32(b[8:12], uint32(m.DeltaX))
		le.PutUint32(b[12:16], uint32(m.DeltaY))
		le.PutUint32(b[16:20], boolU32(m.Absolute))
		le.PutUint32(b[20:24], uint32(m.X))
		le.PutUint32(b[24:28], uint32(m.Y))
		return MouseMoveFixedSize, nil, nil

	case *MouseClick:
		putHeader(b, MsgMouseClick, MouseClickFixedSize)
		le.PutUint32(b[8:12], uint32(m.Button))
		le.PutUint32(b[12:16], boolU32(m.Pressed))
		return MouseClickFixedSize, nil, nil

	case *MouseScroll:
		putHeader(b, MsgMouseScroll, MouseScrollFixedSize)
		le.PutUint32(b[8:12], uint32(m.DeltaX))
		le.PutUint32(b[12:16], uint32(m.DeltaY))
		return MouseScrollFixedSize, nil, nil

	default:
		return 0, nil, fmt.Errorf("unsupported message type: %T", msg)
	}
}

// Encode returns the complete wire encoding of msg.
func Encode(msg any) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- Decoding ---

// ParseHeader decodes a header and checks that the type is known and the
// declared size matches it. Either failure means the stream's framing can
// no longer be trusted.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortMessage
	}
	h := Header{
		Type: MessageType(le.Uint32(b[0:4])),
		Size: le.Uint32(b[4:8]),
	}
	fixed, ok := FixedSize(h.Type)
	if !ok {
		return h, fmt.Errorf("%w: %d", ErrUnknownMessage, uint32(h.Type))
	}
	if h.Size != uint32(fixed) {
		return h, fmt.Errorf("%w: %s declares %d bytes, want %d", ErrSizeMismatch, h.Type, h.Size, fixed)
	}
	return h, nil
}

// BodySize returns the number of fixed-field bytes following the header for
// a known message type.
func BodySize(t MessageType) int {
	fixed, _ := FixedSize(t)
	if fixed == 0 {
		return 0
	}
	return fixed - HeaderSize
}

// DecodeFixed decodes the fixed fields that follow header h. For frame
// messages it validates dimensions and declared size before returning the
// payload length the caller must read next; nothing is allocated from an
// untrusted size field here.
func DecodeFixed(h Header, body []byte) (any, int, error) {
	if _, ok := FixedSize(h.Type); !ok {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownMessage, uint32(h.Type))
	}
	if len(body) < BodySize(h.Type) {
		return nil, 0, ErrShortMessage
	}

	switch h.Type {
	case MsgFrame:
		m := &Frame{
			Width:  le.Uint32(body[0:4]),
			Height: le.Uint32(body[4:8]),
		}
		size := le.Uint32(body[8:12])
		if err := ValidateFrame(m.Width, m.Height, uint64(size)); err != nil {
			return nil, 0, err
		}
		return m, int(size), nil

	case MsgCompressedFrame:
		m := &CompressedFrame{
			Width:    le.Uint32(body[0:4]),
			Height:   le.Uint32(body[4:8]),
			Keyframe: le.Uint32(body[12:16]) != 0,
		}
		size := le.Uint32(body[8:12])
		if err := ValidateFrame(m.Width, m.Height, uint64(size)); err != nil {
			return nil, 0, err
		}
		return m, int(size), nil

	case MsgCompressionRequest:
		return &CompressionRequest{
			Compression: Compression(le.Uint32(body[0:4])),
		}, 0, nil

	case MsgMouseMove:
		return &MouseMove{
			DeltaX:   int32(le.Uint32(body[0:4])),
			DeltaY:   int32(le.Uint32(body[4:8])),
			Absolute: le.Uint32(body[8:12]) != 0,
			X:        int32(le.Uint32(body[12:16])),
			Y:        int32(le.Uint32(body[16:20])),
		}, 0, nil

	case MsgMouseClick:
		return &MouseClick{
			Button:  MouseButton(le.Uint32(body[0:4])),
			Pressed: le.Uint32(body[4:8]) != 0,
		}, 0, nil

	default: // MsgMouseScroll
		return &MouseScroll{
			DeltaX: int32(le.Uint32(body[0:4])),
			DeltaY: int32(le.Uint32(body[4:8])),
		}, 0, nil
	}
}

// AttachPayload stores the variable-length payload read after the fixed
// fields on the message returned by DecodeFixed.
func AttachPayload(msg any, payload []byte) {
	switch m := msg.(type) {
	case *Frame:
		m.Pixels = payload
	case *CompressedFrame:
		m.Data = payload
	}
}

// ReadMessage reads one complete message from r.
func ReadMessage(r io.Reader) (any, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	h, err := ParseHeader(header[:])
	if err != nil {
		return nil, err
	}

	var scratch [MouseMoveFixedSize - HeaderSize]byte
	body := scratch[:BodySize(h.Type)]
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg, payloadLen, err := DecodeFixed(h, body)
	if err != nil {
		return nil, err
	}
	if payloadLen > 0 {
		payload, err := readPayload(r, payloadLen)
		if err != nil {
			return nil, err
		}
		AttachPayload(msg, payload)
	}
	return msg, nil
}

// payloadChunk is the largest payload ReadMessage allocates up front.
// Bigger payloads grow with the bytes actually read, so a lying size field
// on a short stream costs at most about twice what arrived.
const payloadChunk = 1 << 20

func readPayload(r io.Reader, n int) ([]byte, error) {
	if n <= payloadChunk {
		p := make([]byte, n)
		if _, err := io.ReadFull(r, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	var buf bytes.Buffer
	buf.Grow(payloadChunk)
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes exactly one message from b. Sizes are checked against
// len(b) before any payload is copied.
func Decode(b []byte) (any, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	rest := b[HeaderSize:]
	n := BodySize(h.Type)
	if len(rest) < n {
		return nil, ErrShortMessage
	}

	msg, payloadLen, err := DecodeFixed(h, rest[:n])
	if err != nil {
		return nil, err
	}
	rest = rest[n:]
	switch {
	case len(rest) < payloadLen:
		return nil, fmt.Errorf("%w: %d of %d payload bytes", ErrShortMessage, len(rest), payloadLen)
	case len(rest) > payloadLen:
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, len(rest)-payloadLen)
	}
	if payloadLen > 0 {
		AttachPayload(msg, bytes.Clone(rest))
	}
	return msg, nil
}
