package session

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/capture"
	"github.com/mrdesktop/mrdesktop/internal/codec/codectest"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/streamer"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// startTestHost runs a host on a random loopback port. cleanup cancels it
// and returns Run's error.
func startTestHost(t *testing.T, cfg HostConfig) (h *Host, addr string, wait func() error) {
	t.Helper()

	cfg.Addr = "127.0.0.1:0"
	h = NewHost(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Run(ctx)
	}()

	select {
	case <-h.Ready:
	case err := <-errCh:
		cancel()
		t.Fatalf("host exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("timeout waiting for host to listen")
	}
	t.Cleanup(cancel)

	return h, net.JoinHostPort("127.0.0.1", strconv.Itoa(h.Port)), func() error {
		select {
		case err := <-errCh:
			return err
		case <-time.After(10 * time.Second):
			cancel()
			t.Fatal("timeout waiting for host to exit")
			return nil
		}
	}
}

// collector records frames and the disconnect callback.
type collector struct {
	mu           sync.Mutex
	frames       []Frame
	types        []protocol.MessageType
	disconnects  int
	framesAtDisc int
	err          error
}

func (c *collector) onFrame(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *collector) onType(mt protocol.MessageType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, mt)
}

func (c *collector) onDisconnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.framesAtDisc = len(c.frames)
	c.err = err
}

func runViewer(t *testing.T, addr string, mode protocol.Compression, cfg ViewerConfig) (*collector, error) {
	t.Helper()
	c := &collector{}
	cfg.Addr = addr
	cfg.Mode = mode
	cfg.OnFrame = c.onFrame
	cfg.OnDisconnect = c.onDisconnect
	cfg.OnMessageType = c.onType
	if cfg.QueueSlots == 0 {
		cfg.QueueSlots = 8
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := NewViewer(cfg, zerolog.Nop()).Run(ctx)
	return c, err
}

func TestEndToEndTestFrames(t *testing.T) {
	host, addr, wait := startTestHost(t, HostConfig{
		Source:   capture.NewTestPattern(),
		Streamer: streamer.Config{MaxFrames: 3},
	})

	c, err := runViewer(t, addr, protocol.CompressionNone, ViewerConfig{})
	if err != nil {
		t.Fatalf("viewer: %v", err)
	}
	if err := wait(); err != nil {
		t.Fatalf("host: %v", err)
	}

	if len(c.frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(c.frames))
	}
	for i, f := range c.frames {
		if f.Width != 640 || f.Height != 480 || len(f.Pixels) != 1_228_800 {
			t.Fatalf("frame %d: %dx%d with %d bytes", i, f.Width, f.Height, len(f.Pixels))
		}
		if f.Pixels[3] != 255 {
			t.Fatalf("frame %d: alpha at (0,0) = %d", i, f.Pixels[3])
		}
		if f.Pixels[0] != byte(i) {
			t.Fatalf("frame %d: blue at (0,0) = %d, want the frame index", i, f.Pixels[0])
		}
		if f.Compressed {
			t.Fatalf("frame %d should be raw", i)
		}
		if f.Seq != uint64(i+1) {
			t.Fatalf("frame %d: seq %d", i, f.Seq)
		}
	}
	if c.disconnects != 1 || c.framesAtDisc != 3 {
		t.Fatalf("disconnects=%d framesAtDisc=%d", c.disconnects, c.framesAtDisc)
	}
	if !errors.Is(c.err, transport.ErrClosed) {
		t.Fatalf("disconnect cause = %v, want ErrClosed", c.err)
	}
	if host.Result.Sent != 3 || host.Result.Mode != "none" {
		t.Fatalf("unexpected host result %+v", host.Result)
	}
}

func TestHostReadyClosedWhenListenFails(t *testing.T) {
	busy, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	h := NewHost(HostConfig{
		Addr:   net.JoinHostPort("127.0.0.1", strconv.Itoa(busy.Port())),
		Source: capture.NewTestPattern(),
	}, zerolog.Nop())
	if err := h.Run(context.Background()); err == nil {
		t.Fatal("expected listen error on a port in use")
	}
	select {
	case <-h.Ready:
	case <-time.After(time.Second):
		t.Fatal("Ready not closed after a failed Run")
	}
	if h.Port != 0 {
		t.Fatalf("Port = %d after failed listen", h.Port)
	}
}

func TestHostReadyClosedWithoutSource(t *testing.T) {
	h := NewHost(HostConfig{Addr: "127.0.0.1:0"}, zerolog.Nop())
	if err := h.Run(context.Background()); err == nil {
		t.Fatal("expected error without a capture source")
	}
	select {
	case <-h.Ready:
	default:
		t.Fatal("Ready not closed after a failed Run")
	}
}

func TestCodecFallbackSendsRawFrames(t *testing.T) {
	fake := &codectest.Fake{InitErr: errors.New("encoder missing")}
	host, addr, wait := startTestHost(t, HostConfig{
		Source: &capture.TestPattern{Width: 64, Height: 48},
		Streamer: streamer.Config{
			MaxFrames: 3,
			Codecs:    codectest.Registry(protocol.CompressionH264, fake),
		},
	})

	c, err := runViewer(t, addr, protocol.CompressionH264, ViewerConfig{})
	if err != nil {
		t.Fatalf("viewer: %v", err)
	}
	if err := wait(); err != nil {
		t.Fatalf("host: %v", err)
	}

	if !host.Result.FellBack || host.Result.SentCompressed != 0 || host.Result.Mode != "h264" {
		t.Fatalf("unexpected host result %+v", host.Result)
	}
	if len(c.frames) == 0 {
		t.Fatal("expected at least one raw frame")
	}
	for _, mt := range c.types {
		if mt != protocol.MsgFrame {
			t.Fatalf("unexpected message type %s", mt)
		}
	}
}

func TestCompressedEndToEnd(t *testing.T) {
	hostCodec := &codectest.Fake{}
	viewerCodec := &codectest.Fake{}
	_, addr, wait := startTestHost(t, HostConfig{
		Source: &capture.TestPattern{Width: 32, Height: 32},
		Streamer: streamer.Config{
			MaxFrames: 3,
			Codecs:    codectest.Registry(protocol.CompressionH265, hostCodec),
		},
	})

	c, err := runViewer(t, addr, protocol.CompressionH265, ViewerConfig{
		Codecs: codectest.Registry(protocol.CompressionH265, viewerCodec),
	})
	if err != nil {
		t.Fatalf("viewer: %v", err)
	}
	if err := wait(); err != nil {
		t.Fatalf("host: %v", err)
	}

	if len(c.frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(c.frames))
	}
	for i, f := range c.frames {
		if !f.Compressed {
			t.Fatalf("frame %d should be compressed", i)
		}
		if err := capture.VerifyTestFrame(f.Width, f.Height, f.Pixels); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if !c.frames[0].Keyframe {
		t.Fatal("first frame should be a keyframe")
	}
	if viewerCodec.Decodes() != 3 {
		t.Fatalf("viewer decoded %d frames", viewerCodec.Decodes())
	}
}

// A viewer that never sends a request still gets raw frames once the
// host gives up waiting.
func TestNegotiationDefaultsToNone(t *testing.T) {
	host, addr, wait := startTestHost(t, HostConfig{
		Source:           &capture.TestPattern{Width: 8, Height: 8},
		NegotiateTimeout: 50 * time.Millisecond,
		Streamer:         streamer.Config{MaxFrames: 1},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := transport.Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	f := transport.NewFramer(tr, transport.Backoff{})

	var msg any
	for msg == nil {
		if ctx.Err() != nil {
			t.Fatal("timeout waiting for frame")
		}
		if msg, err = f.Poll(); err != nil {
			t.Fatalf("poll: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if _, ok := msg.(*protocol.Frame); !ok {
		t.Fatalf("expected raw frame, got %T", msg)
	}
	if err := wait(); err != nil {
		t.Fatalf("host: %v", err)
	}
	if host.Result.Mode != "none" {
		t.Fatalf("mode = %s, want none", host.Result.Mode)
	}
}

func TestHostInputReachesHandler(t *testing.T) {
	got := make(chan protocol.MouseButton, 1)
	_, addr, _ := startTestHost(t, HostConfig{
		Source: &capture.TestPattern{Width: 8, Height: 8},
		Input:  clickSink(got),
	})

	v := NewViewer(ViewerConfig{Addr: addr}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Run(ctx)

	select {
	case <-v.Connected:
	case <-time.After(5 * time.Second):
		t.Fatal("viewer never connected")
	}
	if err := v.Input().Click(protocol.ButtonRight, true); err != nil {
		t.Fatalf("click: %v", err)
	}

	select {
	case b := <-got:
		if b != protocol.ButtonRight {
			t.Fatalf("button = %s", b)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("click never reached the host")
	}
}

type clickSink chan protocol.MouseButton

func (c clickSink) OnMouseMove(dx, dy int32, absolute bool, x, y int32) {}
func (c clickSink) OnMouseScroll(dx, dy int32)                          {}
func (c clickSink) OnMouseClick(b protocol.MouseButton, pressed bool) {
	select {
	case c <- b:
	default:
	}
}

func TestViewerCancelDisconnectsOnce(t *testing.T) {
	_, addr, _ := startTestHost(t, HostConfig{
		Source: &capture.TestPattern{Width: 8, Height: 8},
	})

	c := &collector{}
	v := NewViewer(ViewerConfig{Addr: addr, OnFrame: c.onFrame, OnDisconnect: c.onDisconnect}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- v.Run(ctx) }()

	<-v.Connected
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not stop")
	}
	v.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", c.disconnects)
	}
	if !errors.Is(c.err, context.Canceled) {
		t.Fatalf("disconnect cause = %v", c.err)
	}
}

func TestViewerDialFailure(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Port()))
	ln.Close()

	c, err := runViewer(t, addr, protocol.CompressionNone, ViewerConfig{})
	if !errors.Is(err, transport.ErrConnectionRefused) {
		t.Fatalf("expected ErrConnectionRefused, got %v", err)
	}
	if c.disconnects != 0 {
		t.Fatal("OnDisconnect must not run when the dial fails")
	}
}

func TestSessionCloseOnce(t *testing.T) {
	a, b := transport.Pipe(transport.PipeOptions{})
	defer b.Close()
	s := newSession(RoleHost, a, transport.Backoff{}, zerolog.Nop())

	first := errors.New("first")
	s.Close(first)
	s.Close(errors.New("second"))

	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed")
	}
	if !errors.Is(s.Err(), first) {
		t.Fatalf("Err() = %v, want first cause", s.Err())
	}
	if !a.Closed() {
		t.Fatal("transport should be closed")
	}
	if len(s.ID) != 36 {
		t.Fatalf("session ID %q is not a uuid", s.ID)
	}
}
