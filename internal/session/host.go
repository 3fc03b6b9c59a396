package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/capture"
	"github.com/mrdesktop/mrdesktop/internal/input"
	"github.com/mrdesktop/mrdesktop/internal/negotiate"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/streamer"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// DefaultListenAddr is where the host listens unless configured otherwise.
const DefaultListenAddr = ":8080"

// HostConfig configures a Host. Zero values select defaults.
type HostConfig struct {
	Addr             string
	Source           capture.Source // required
	Input            input.Handler  // nil logs events
	NegotiateTimeout time.Duration
	Streamer         streamer.Config // Mode is set by negotiation
	Backoff          transport.Backoff
}

// HostResult summarizes a finished host run.
type HostResult struct {
	SessionID      string
	Mode           string
	Sent           int
	SentCompressed int
	FellBack       bool
}

// Host accepts exactly one viewer and streams to it.
type Host struct {
	cfg HostConfig
	log zerolog.Logger

	// Ready is closed once the listener is bound, with Port set. It is
	// also closed if Run fails before binding, in which case Port is 0.
	// Callers (tests, CLI) can wait on this before dialing.
	Ready chan struct{}
	Port  int
	ready sync.Once

	// Result is filled in when Run returns.
	Result HostResult
}

func NewHost(cfg HostConfig, log zerolog.Logger) *Host {
	if cfg.Addr == "" {
		cfg.Addr = DefaultListenAddr
	}
	if cfg.Input == nil {
		cfg.Input = input.LogInjector{Log: log.With().Str("component", "input").Logger()}
	}
	return &Host{cfg: cfg, log: log, Ready: make(chan struct{})}
}

// Run listens, accepts one viewer, negotiates compression and streams
// until ctx ends, the viewer disconnects, a fatal error occurs, or the
// configured frame limit is reached (which returns nil).
func (h *Host) Run(ctx context.Context) error {
	defer h.markReady()
	if h.cfg.Source == nil {
		return errors.New("host: no capture source")
	}

	ln, err := transport.Listen(h.cfg.Addr)
	if err != nil {
		return err
	}
	h.Port = ln.Port()
	h.markReady()
	h.log.Info().Int("port", h.Port).Msg("waiting for viewer")

	t, err := ln.Accept(ctx)
	// One viewer per run; stop listening as soon as it's in.
	ln.Close()
	if err != nil {
		return err
	}

	s := newSession(RoleHost, t, h.cfg.Backoff, h.log)
	s.log.Info().Msg("viewer connected")
	stop := context.AfterFunc(ctx, func() { s.Close(ctx.Err()) })
	defer stop()

	mode, err := negotiate.New(s.log).Await(s.f, h.cfg.NegotiateTimeout)
	if err != nil {
		s.Close(err)
		return h.finish(ctx, s, err)
	}
	s.setMode(mode)

	scfg := h.cfg.Streamer
	scfg.Mode = mode
	st := streamer.New(s.f, h.cfg.Source, h.cfg.Input, scfg, s.log)
	err = st.Run(ctx)
	s.Close(err)

	h.Result = HostResult{
		SessionID:      s.ID,
		Mode:           mode.String(),
		Sent:           st.Sent(),
		SentCompressed: st.SentCompressed(),
		FellBack:       st.FellBack() && mode != protocol.CompressionNone,
	}
	return h.finish(ctx, s, err)
}

func (h *Host) markReady() {
	h.ready.Do(func() { close(h.Ready) })
}

func (h *Host) finish(ctx context.Context, s *Session, err error) error {
	if h.Result.SessionID == "" {
		h.Result.SessionID = s.ID
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("host session %s: %w", s.ID, err)
	}
	return nil
}
