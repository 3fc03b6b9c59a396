// Package streamer is the host half of a session: it drains viewer input,
// captures the desktop, optionally compresses, and sends frames.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/capture"
	"github.com/mrdesktop/mrdesktop/internal/codec"
	"github.com/mrdesktop/mrdesktop/internal/input"
	"github.com/mrdesktop/mrdesktop/internal/metrics"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/stats"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

const (
	DefaultFrameInterval   = 16 * time.Millisecond // ~60 fps
	DefaultMaxInputPerTick = 32
	DefaultStatusEvery     = 30
)

// Config controls a Streamer. Zero values select defaults.
type Config struct {
	Mode            protocol.Compression
	Codecs          *codec.Registry // nil uses codec.Default
	FrameInterval   time.Duration
	MaxFrames       int // stop after this many sent frames; 0 = unlimited
	MaxInputPerTick int
	StatusEvery     int
}

func (c *Config) setDefaults() {
	if c.Codecs == nil {
		c.Codecs = codec.Default
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.MaxInputPerTick <= 0 {
		c.MaxInputPerTick = DefaultMaxInputPerTick
	}
	if c.StatusEvery <= 0 {
		c.StatusEvery = DefaultStatusEvery
	}
}

// Streamer drives one host session. Step and Run must be called from a
// single goroutine; the streamer owns its encoder.
type Streamer struct {
	cfg   Config
	f     *transport.Framer
	src   capture.Source
	input input.Handler
	log   zerolog.Logger
	meter *stats.Meter

	enc          codec.Codec
	encW, encH   uint32
	fallback     bool
	sent         int
	sentCompress int
}

// New creates a streamer sending on f. handler receives viewer input and
// may be nil.
func New(f *transport.Framer, src capture.Source, handler input.Handler, cfg Config, log zerolog.Logger) *Streamer {
	cfg.setDefaults()
	return &Streamer{
		cfg:      cfg,
		f:        f,
		src:      src,
		input:    handler,
		log:      log,
		meter:    stats.NewMeter(cfg.StatusEvery),
		fallback: cfg.Mode == protocol.CompressionNone,
	}
}

// Sent returns the number of frames sent so far.
func (s *Streamer) Sent() int { return s.sent }

// SentCompressed returns how many of the sent frames were compressed.
func (s *Streamer) SentCompressed() int { return s.sentCompress }

// FellBack reports whether the streamer is sending raw frames, either
// because nothing was negotiated or because the encoder failed.
func (s *Streamer) FellBack() bool { return s.fallback }

// Run steps every FrameInterval until ctx ends, a fatal transport error
// occurs, or MaxFrames frames have been sent.
func (s *Streamer) Run(ctx context.Context) error {
	defer s.closeEncoder()

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Step(); err != nil {
			return err
		}
		if s.cfg.MaxFrames > 0 && s.sent >= s.cfg.MaxFrames {
			s.log.Info().Int("frames", s.sent).Msg("frame limit reached")
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Step runs one iteration: drain input, capture, encode and send. It
// reports whether a frame went out. Errors are fatal for the session.
func (s *Streamer) Step() (bool, error) {
	if err := s.drainInput(); err != nil {
		return false, err
	}

	img, err := s.src.CaptureNext()
	if err != nil {
		if !errors.Is(err, capture.ErrNotReady) {
			s.log.Warn().Err(err).Msg("capture failed")
		}
		return false, nil
	}
	if !img.Valid() {
		metrics.FrameDropped(metrics.DropCaptureInvalid)
		s.log.Warn().
			Uint32("width", img.Width).Uint32("height", img.Height).
			Int("bytes", len(img.Pixels)).
			Msg("captured image out of bounds, skipping")
		return false, nil
	}

	var n int
	if s.compressing(img.Width, img.Height) {
		pkt, key, ok := s.encode(img)
		if !ok {
			return false, nil
		}
		if err := s.f.Send(&protocol.CompressedFrame{
			Width: img.Width, Height: img.Height, Keyframe: key, Data: pkt,
		}); err != nil {
			return false, fmt.Errorf("send compressed frame: %w", err)
		}
		metrics.FrameSent(metrics.KindCompressed, len(pkt))
		s.sentCompress++
		n = len(pkt)
	} else {
		if err := s.f.Send(&protocol.Frame{
			Width: img.Width, Height: img.Height, Pixels: img.Pixels,
		}); err != nil {
			return false, fmt.Errorf("send frame: %w", err)
		}
		metrics.FrameSent(metrics.KindRaw, len(img.Pixels))
		n = len(img.Pixels)
	}
	s.sent++

	if r, ok := s.meter.Tick(n); ok {
		s.log.Info().
			Uint64("frames", r.Frames).
			Str("fps", fmt.Sprintf("%.1f", r.FPS)).
			Str("frame_size", stats.FormatBytes(r.LastBytes)).
			Float64("cpu", r.CPU).
			Msg("streaming")
	}
	return true, nil
}

// drainInput handles up to MaxInputPerTick pending viewer messages.
func (s *Streamer) drainInput() error {
	for range s.cfg.MaxInputPerTick {
		msg, err := s.f.Poll()
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if msg == nil {
			return nil
		}
		if !input.Dispatch(s.input, msg) {
			s.log.Debug().Str("type", fmt.Sprintf("%T", msg)).Msg("ignoring non-input message")
		}
	}
	return nil
}

// compressing makes sure an encoder is ready for the given dimensions and
// reports whether this frame should be compressed. An encoder that cannot
// be created or initialized switches the session to raw frames for good.
func (s *Streamer) compressing(w, h uint32) bool {
	if s.fallback {
		return false
	}
	if s.enc != nil && s.encW == w && s.encH == h {
		return true
	}

	if s.enc == nil {
		enc, err := s.cfg.Codecs.New(s.cfg.Mode)
		if err != nil {
			s.fallBack(err)
			return false
		}
		s.enc = enc
	}
	if err := s.enc.Init(w, h, s.cfg.Mode); err != nil {
		s.fallBack(fmt.Errorf("init %dx%d: %w", w, h, err))
		return false
	}
	s.encW, s.encH = w, h
	s.log.Info().Str("compression", s.cfg.Mode.String()).
		Uint32("width", w).Uint32("height", h).Msg("encoder initialized")
	return true
}

func (s *Streamer) fallBack(err error) {
	s.fallback = true
	s.closeEncoder()
	metrics.CodecFallback(s.cfg.Mode.String())
	s.log.Warn().Err(err).Str("compression", s.cfg.Mode.String()).
		Msg("encoder unavailable, sending uncompressed frames")
}

func (s *Streamer) encode(img capture.Image) ([]byte, bool, bool) {
	start := time.Now()
	pkt, key, err := s.enc.Encode(img.Pixels)
	metrics.ObserveEncode(time.Since(start))
	if err != nil {
		metrics.FrameDropped(metrics.DropEncodeFailed)
		s.log.Warn().Err(err).Msg("encode failed, skipping frame")
		return nil, false, false
	}
	if len(pkt) == 0 || len(pkt) > protocol.MaxFrameDataSize {
		metrics.FrameDropped(metrics.DropEncodeFailed)
		s.log.Warn().Int("bytes", len(pkt)).Msg("encoder produced unusable packet, skipping frame")
		return nil, false, false
	}
	return pkt, key, true
}

func (s *Streamer) closeEncoder() {
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
		s.encW, s.encH = 0, 0
	}
}
