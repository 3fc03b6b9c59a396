// Package receiver is the viewer half of a session: it polls the
// transport, decodes frames and hands them to a queue.
package receiver

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/codec"
	"github.com/mrdesktop/mrdesktop/internal/framequeue"
	"github.com/mrdesktop/mrdesktop/internal/input"
	"github.com/mrdesktop/mrdesktop/internal/metrics"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/stats"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// Frame is a decoded frame as delivered to the consumer.
type Frame = framequeue.Frame

// Config controls a Receiver. Zero values select defaults.
type Config struct {
	Mode   protocol.Compression // negotiated mode
	Codecs *codec.Registry      // nil uses codec.Default
	// Input receives input messages arriving on the viewer side; may be nil.
	Input input.Handler
	// OnMessageType, if set, observes the type of every message read.
	OnMessageType func(protocol.MessageType)
	StatusEvery   int
}

// Receiver reads frames for one viewer session. PollOnce must be called
// from a single goroutine; the receiver owns its decoder.
type Receiver struct {
	cfg   Config
	f     *transport.Framer
	q     *framequeue.Queue
	log   zerolog.Logger
	meter *stats.Meter

	dec        codec.Codec
	decW, decH uint32
	seq        uint64
}

func New(f *transport.Framer, q *framequeue.Queue, cfg Config, log zerolog.Logger) *Receiver {
	if cfg.Codecs == nil {
		cfg.Codecs = codec.Default
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = 60
	}
	return &Receiver{cfg: cfg, f: f, q: q, log: log, meter: stats.NewMeter(cfg.StatusEvery)}
}

// Delivered returns the number of frames pushed to the queue.
func (r *Receiver) Delivered() uint64 { return r.seq }

// PollOnce reads at most one message. It returns true if a message was
// processed and false if nothing was pending. An error means the stream
// is unusable (closed, stalled, or corrupt) and the session must end;
// there is no attempt to resynchronize.
func (r *Receiver) PollOnce() (bool, error) {
	msg, err := r.f.Poll()
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	switch m := msg.(type) {
	case *protocol.Frame:
		r.observe(protocol.MsgFrame)
		r.handleRaw(m)
	case *protocol.CompressedFrame:
		r.observe(protocol.MsgCompressedFrame)
		r.handleCompressed(m)
	case *protocol.MouseMove:
		r.observe(protocol.MsgMouseMove)
		input.Dispatch(r.cfg.Input, m)
	case *protocol.MouseClick:
		r.observe(protocol.MsgMouseClick)
		input.Dispatch(r.cfg.Input, m)
	case *protocol.MouseScroll:
		r.observe(protocol.MsgMouseScroll)
		input.Dispatch(r.cfg.Input, m)
	case *protocol.CompressionRequest:
		r.observe(protocol.MsgCompressionRequest)
		r.log.Debug().Msg("ignoring compression request from host")
	}
	return true, nil
}

func (r *Receiver) observe(t protocol.MessageType) {
	if r.cfg.OnMessageType != nil {
		r.cfg.OnMessageType(t)
	}
}

func (r *Receiver) handleRaw(m *protocol.Frame) {
	want := protocol.FrameBytes(m.Width, m.Height)
	if uint64(len(m.Pixels)) != want {
		metrics.FrameDropped(metrics.DropSizeMismatch)
		r.log.Warn().
			Uint32("width", m.Width).Uint32("height", m.Height).
			Int("bytes", len(m.Pixels)).Uint64("want", want).
			Msg("raw frame size mismatch, dropping")
		return
	}
	r.deliver(Frame{Width: m.Width, Height: m.Height, Pixels: m.Pixels})
}

func (r *Receiver) handleCompressed(m *protocol.CompressedFrame) {
	if r.cfg.Mode == protocol.CompressionNone {
		metrics.FrameDropped(metrics.DropUnexpected)
		r.log.Warn().Msg("compressed frame without negotiated compression, dropping")
		return
	}
	if err := r.ensureDecoder(m.Width, m.Height); err != nil {
		metrics.FrameDropped(metrics.DropDecoderInit)
		r.log.Warn().Err(err).Msg("decoder unavailable, dropping frame")
		return
	}

	pixels, err := r.dec.Decode(m.Data)
	if err != nil {
		metrics.FrameDropped(metrics.DropDecodeFailed)
		r.log.Warn().Err(err).Bool("keyframe", m.Keyframe).Msg("decode failed, dropping frame")
		return
	}
	want := protocol.FrameBytes(m.Width, m.Height)
	if uint64(len(pixels)) < want {
		metrics.FrameDropped(metrics.DropSizeMismatch)
		r.log.Warn().Int("bytes", len(pixels)).Uint64("want", want).Msg("decoded frame too short, dropping")
		return
	}
	r.deliver(Frame{
		Width:      m.Width,
		Height:     m.Height,
		Pixels:     pixels[:want],
		Compressed: true,
		Keyframe:   m.Keyframe,
	})
}

// ensureDecoder creates and initializes the decoder for the given size. A
// failed attempt leaves no decoder behind, so the next frame tries again.
func (r *Receiver) ensureDecoder(w, h uint32) error {
	if r.dec != nil && r.decW == w && r.decH == h {
		return nil
	}
	if r.dec == nil {
		dec, err := r.cfg.Codecs.New(r.cfg.Mode)
		if err != nil {
			return err
		}
		r.dec = dec
	}
	if err := r.dec.Init(w, h, r.cfg.Mode); err != nil {
		r.Close()
		return fmt.Errorf("init %s decoder %dx%d: %w", r.cfg.Mode, w, h, err)
	}
	r.decW, r.decH = w, h
	r.log.Info().Str("compression", r.cfg.Mode.String()).
		Uint32("width", w).Uint32("height", h).Msg("decoder initialized")
	return nil
}

func (r *Receiver) deliver(f Frame) {
	r.seq++
	f.Seq = r.seq
	kind := metrics.KindRaw
	if f.Compressed {
		kind = metrics.KindCompressed
	}
	metrics.FrameReceived(kind, len(f.Pixels))

	if evicted := r.q.Push(f); evicted > 0 {
		for range evicted {
			metrics.FrameDropped(metrics.DropQueueFull)
		}
		r.log.Debug().Int("evicted", evicted).Msg("consumer lagging, dropped oldest frames")
	}

	if rep, ok := r.meter.Tick(len(f.Pixels)); ok {
		r.log.Info().
			Uint64("frames", rep.Frames).
			Str("fps", fmt.Sprintf("%.1f", rep.FPS)).
			Str("frame_size", stats.FormatBytes(rep.LastBytes)).
			Float64("cpu", rep.CPU).
			Msg("receiving")
	}
}

// Close releases the decoder.
func (r *Receiver) Close() {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
		r.decW, r.decH = 0, 0
	}
}
