package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/codec"
	"github.com/mrdesktop/mrdesktop/internal/framequeue"
	"github.com/mrdesktop/mrdesktop/internal/input"
	"github.com/mrdesktop/mrdesktop/internal/negotiate"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/receiver"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// DefaultPollInterval is the viewer's idle wait between empty polls.
const DefaultPollInterval = 10 * time.Millisecond

// Frame is a decoded frame delivered to ViewerConfig.OnFrame.
type Frame = framequeue.Frame

// ViewerConfig configures a Viewer. Zero values select defaults.
type ViewerConfig struct {
	Addr   string // host:port, required
	Mode   protocol.Compression
	Codecs *codec.Registry

	PollInterval time.Duration
	QueueSlots   int

	// OnFrame runs on a dedicated delivery goroutine, never on the
	// receive loop. A slow OnFrame causes older frames to be skipped.
	OnFrame func(Frame)
	// OnDisconnect runs exactly once per connected Run, after every
	// queued frame has been passed to OnFrame. err is nil only when the
	// viewer was closed locally without a cause.
	OnDisconnect func(err error)
	// OnMessageType observes the type of each message read.
	OnMessageType func(protocol.MessageType)

	Backoff transport.Backoff
}

// Viewer connects to a host, negotiates compression and receives frames.
type Viewer struct {
	cfg ViewerConfig
	log zerolog.Logger

	// Connected is closed once the transport is up and Input is usable.
	Connected chan struct{}

	session atomic.Pointer[Session]
	sender  atomic.Pointer[input.Sender]
	once    sync.Once
}

func NewViewer(cfg ViewerConfig, log zerolog.Logger) *Viewer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Viewer{cfg: cfg, log: log, Connected: make(chan struct{})}
}

// Input returns the sender for viewer input, or nil before connecting.
func (v *Viewer) Input() *input.Sender {
	return v.sender.Load()
}

// Close ends the session, if connected.
func (v *Viewer) Close() {
	if s := v.session.Load(); s != nil {
		s.Close(nil)
	}
}

// Run dials the host and receives until the connection ends. Dial errors
// are returned without invoking OnDisconnect.
func (v *Viewer) Run(ctx context.Context) error {
	t, err := transport.Dial(ctx, v.cfg.Addr)
	if err != nil {
		return err
	}

	s := newSession(RoleViewer, t, v.cfg.Backoff, v.log)
	s.setMode(v.cfg.Mode)
	v.session.Store(s)
	v.sender.Store(input.NewSender(s.f))
	close(v.Connected)
	s.log.Info().Str("compression", v.cfg.Mode.String()).Msg("connected to host")

	stop := context.AfterFunc(ctx, func() { s.Close(ctx.Err()) })
	defer stop()

	q := framequeue.New(v.cfg.QueueSlots, 0)
	delivered := make(chan struct{})
	go v.deliver(q, delivered)

	rec := receiver.New(s.f, q, receiver.Config{
		Mode:          v.cfg.Mode,
		Codecs:        v.cfg.Codecs,
		OnMessageType: v.cfg.OnMessageType,
	}, s.log)

	if err := negotiate.Request(s.f, v.cfg.Mode); err != nil {
		s.Close(err)
	} else {
		v.receive(s, rec)
	}

	rec.Close()
	q.Close()
	<-delivered

	err = s.Err()
	v.disconnect(err)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, transport.ErrClosed) {
		// Host hung up: a normal end of stream.
		return nil
	}
	return err
}

// receive polls until the session closes or the stream fails.
func (v *Viewer) receive(s *Session, rec *receiver.Receiver) {
	idle := time.NewTimer(v.cfg.PollInterval)
	defer idle.Stop()

	for {
		got, err := rec.PollOnce()
		if err != nil {
			s.Close(err)
			return
		}
		if got {
			continue
		}
		idle.Reset(v.cfg.PollInterval)
		select {
		case <-s.Done():
			return
		case <-idle.C:
		}
	}
}

func (v *Viewer) deliver(q *framequeue.Queue, done chan<- struct{}) {
	defer close(done)
	for {
		f, ok := q.Next(context.Background())
		if !ok {
			return
		}
		if v.cfg.OnFrame != nil {
			v.cfg.OnFrame(f)
		}
	}
}

func (v *Viewer) disconnect(err error) {
	v.once.Do(func() {
		if v.cfg.OnDisconnect != nil {
			v.cfg.OnDisconnect(err)
		}
	})
}
