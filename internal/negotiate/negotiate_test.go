package negotiate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdesktop/mrdesktop/internal/capture"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/streamer"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

func pair(t *testing.T) (host, viewer *transport.Framer) {
	t.Helper()
	a, b := transport.Pipe(transport.PipeOptions{})
	t.Cleanup(func() { a.Close(); b.Close() })
	return transport.NewFramer(a, transport.Backoff{Stall: 100 * time.Millisecond}),
		transport.NewFramer(b, transport.Backoff{})
}

func TestRequestHonoured(t *testing.T) {
	host, viewer := pair(t)
	require.NoError(t, Request(viewer, protocol.CompressionH265))

	n := New(zerolog.Nop())
	mode, err := n.Await(host, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionH265, mode)
	assert.Equal(t, Negotiated, n.State())
	assert.Equal(t, OutcomeRequested, n.Outcome())
}

func TestMissingRequestDefaultsToNone(t *testing.T) {
	host, _ := pair(t)

	n := New(zerolog.Nop())
	start := time.Now()
	mode, err := n.Await(host, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionNone, mode)
	assert.Equal(t, OutcomeTimeout, n.Outcome())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestUnknownModeDefaultsToNone(t *testing.T) {
	host, viewer := pair(t)
	require.NoError(t, viewer.Send(&protocol.CompressionRequest{Compression: 42}))

	n := New(zerolog.Nop())
	mode, err := n.Await(host, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionNone, mode)
	assert.Equal(t, OutcomeUnknownMode, n.Outcome())
}

func TestOtherMessageDefaultsToNone(t *testing.T) {
	host, viewer := pair(t)
	require.NoError(t, viewer.Send(&protocol.MouseMove{DeltaX: 1}))

	n := New(zerolog.Nop())
	mode, err := n.Await(host, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionNone, mode)
	assert.Equal(t, OutcomeUnexpected, n.Outcome())
}

func TestGarbledRequestDefaultsToNone(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"unknown type", []byte{99, 0, 0, 0, 12, 0, 0, 0, 1, 0, 0, 0}},
		{"size mismatch", []byte{6, 0, 0, 0, 9, 0, 0, 0, 1, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := transport.Pipe(transport.PipeOptions{})
			defer a.Close()
			require.NoError(t, transport.WriteAll(a, tt.raw, transport.Backoff{}))

			host := transport.NewFramer(b, transport.Backoff{Stall: 200 * time.Millisecond})
			n := New(zerolog.Nop())
			mode, err := n.Await(host, time.Second)
			require.NoError(t, err)
			assert.Equal(t, protocol.CompressionNone, mode)
			assert.Equal(t, OutcomeGarbled, n.Outcome())

			// The whole request was consumed: streaming starts at once and
			// later viewer input is still framed correctly.
			viewer := transport.NewFramer(a, transport.Backoff{})
			require.NoError(t, viewer.Send(&protocol.MouseScroll{DeltaY: 1}))

			var h scrollCounter
			st := streamer.New(host, capture.NewTestPattern(), &h, streamer.Config{Mode: mode}, zerolog.Nop())
			sent, err := st.Step()
			require.NoError(t, err)
			assert.True(t, sent)
			assert.Equal(t, 1, h.scrolls)
		})
	}
}

// A garbled header followed by silence must not hold negotiation past
// its deadline.
func TestGarbledHeaderWithoutBody(t *testing.T) {
	a, b := transport.Pipe(transport.PipeOptions{})
	defer a.Close()
	require.NoError(t, transport.WriteAll(a, []byte{99, 0, 0, 0, 12, 0, 0, 0}, transport.Backoff{}))

	n := New(zerolog.Nop())
	start := time.Now()
	mode, err := n.Await(transport.NewFramer(b, transport.Backoff{}), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionNone, mode)
	assert.Less(t, time.Since(start), time.Second)
}

type scrollCounter struct{ scrolls int }

func (c *scrollCounter) OnMouseMove(dx, dy int32, absolute bool, x, y int32) {}
func (c *scrollCounter) OnMouseClick(protocol.MouseButton, bool)             {}
func (c *scrollCounter) OnMouseScroll(dx, dy int32)                          { c.scrolls++ }

func TestClosedTransportIsAnError(t *testing.T) {
	a, b := transport.Pipe(transport.PipeOptions{})
	a.Close()

	n := New(zerolog.Nop())
	_, err := n.Await(transport.NewFramer(b, transport.Backoff{}), time.Second)
	require.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, AwaitingRequest, n.State())
}

func TestModeIsImmutable(t *testing.T) {
	host, viewer := pair(t)
	require.NoError(t, Request(viewer, protocol.CompressionAV1))

	n := New(zerolog.Nop())
	_, err := n.Await(host, time.Second)
	require.NoError(t, err)

	// A second request is never consumed by the negotiator.
	require.NoError(t, Request(viewer, protocol.CompressionH264))
	mode, err := n.Await(host, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionAV1, mode)

	msg, err := host.Poll()
	require.NoError(t, err)
	assert.IsType(t, &protocol.CompressionRequest{}, msg)
}
