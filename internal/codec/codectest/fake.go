// Package codectest provides a scriptable Codec for exercising compression
// paths without a real encoder.
package codectest

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/mrdesktop/mrdesktop/internal/codec"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// Magic prefixes every packet produced by Fake.Encode.
var Magic = []byte("FAKE")

// Fake "compresses" by prefixing Magic to the raw pixels. Errors set on
// it are returned by the matching call. Counters are safe to read from
// another goroutine.
type Fake struct {
	InitErr   error
	EncodeErr error
	DecodeErr error
	// KeyframeInterval marks every Nth packet as a keyframe (default 30).
	KeyframeInterval int

	mu            sync.Mutex
	width, height uint32
	inits         int
	encodes       int
	decodes       int
	closed        bool
}

func (f *Fake) Init(width, height uint32, mode protocol.Compression) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.InitErr != nil {
		return f.InitErr
	}
	f.width, f.height = width, height
	return nil
}

func (f *Fake) Encode(raw []byte) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.width == 0 {
		return nil, false, codec.ErrNotInitialized
	}
	if f.EncodeErr != nil {
		return nil, false, f.EncodeErr
	}
	interval := f.KeyframeInterval
	if interval <= 0 {
		interval = 30
	}
	key := f.encodes%interval == 0
	f.encodes++
	return append(bytes.Clone(Magic), raw...), key, nil
}

func (f *Fake) Decode(packet []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.width == 0 {
		return nil, codec.ErrNotInitialized
	}
	if f.DecodeErr != nil {
		return nil, f.DecodeErr
	}
	if !bytes.HasPrefix(packet, Magic) {
		return nil, errors.New("codectest: not a fake packet")
	}
	f.decodes++
	return bytes.Clone(packet[len(Magic):]), nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) Inits() int   { f.mu.Lock(); defer f.mu.Unlock(); return f.inits }
func (f *Fake) Encodes() int { f.mu.Lock(); defer f.mu.Unlock(); return f.encodes }
func (f *Fake) Decodes() int { f.mu.Lock(); defer f.mu.Unlock(); return f.decodes }
func (f *Fake) Closed() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.closed }

// Dimensions returns the size from the last successful Init.
func (f *Fake) Dimensions() (uint32, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

// Registry returns a registry whose factory for mode always hands out c.
func Registry(mode protocol.Compression, c codec.Codec) *codec.Registry {
	r := codec.NewRegistry()
	r.Register(mode, fmt.Sprintf("fake-%s", mode), func() (codec.Codec, error) { return c, nil })
	return r
}
