package codec_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdesktop/mrdesktop/internal/codec"
	"github.com/mrdesktop/mrdesktop/internal/codec/codectest"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

func TestNewUnsupported(t *testing.T) {
	r := codec.NewRegistry()

	_, err := r.New(protocol.CompressionH265)
	require.ErrorIs(t, err, codec.ErrUnsupported)

	_, err = r.New(protocol.CompressionNone)
	require.ErrorIs(t, err, codec.ErrUnsupported)
}

func TestRegisterAndNew(t *testing.T) {
	fake := &codectest.Fake{}
	r := codectest.Registry(protocol.CompressionH264, fake)

	c, err := r.New(protocol.CompressionH264)
	require.NoError(t, err)
	assert.Same(t, fake, c)

	name, ok := r.Backend(protocol.CompressionH264)
	assert.True(t, ok)
	assert.Equal(t, "fake-h264", name)
	assert.Equal(t, []protocol.Compression{protocol.CompressionH264}, r.Modes())
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	boom := errors.New("no hardware encoder")
	r := codec.NewRegistry()
	r.Register(protocol.CompressionAV1, "hw", func() (codec.Codec, error) { return nil, boom })

	_, err := r.New(protocol.CompressionAV1)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"hw"`)
}

func TestModesSorted(t *testing.T) {
	r := codec.NewRegistry()
	for _, m := range []protocol.Compression{protocol.CompressionH265, protocol.CompressionH264, protocol.CompressionAV1} {
		r.Register(m, m.String(), func() (codec.Codec, error) { return &codectest.Fake{}, nil })
	}
	assert.Equal(t, []protocol.Compression{
		protocol.CompressionH264, protocol.CompressionAV1, protocol.CompressionH265,
	}, r.Modes())
}

func TestFakeRoundTrip(t *testing.T) {
	f := &codectest.Fake{KeyframeInterval: 2}
	_, _, err := f.Encode([]byte{1})
	require.ErrorIs(t, err, codec.ErrNotInitialized)

	require.NoError(t, f.Init(1, 1, protocol.CompressionH264))
	raw := []byte{1, 2, 3, 4}

	pkt, key, err := f.Encode(raw)
	require.NoError(t, err)
	assert.True(t, key)
	_, key, err = f.Encode(raw)
	require.NoError(t, err)
	assert.False(t, key)

	out, err := f.Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	_, err = f.Decode([]byte("garbage"))
	require.Error(t, err)
}
