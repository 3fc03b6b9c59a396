// Package codec defines the frame compression capability and a registry of
// backends keyed by compression mode. Concrete encoders live outside this
// module and register themselves with Default.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

var (
	// ErrUnsupported is returned by New when no backend exists for a mode.
	ErrUnsupported = errors.New("codec not supported")
	// ErrNotInitialized is returned by Encode or Decode before Init.
	ErrNotInitialized = errors.New("codec not initialized")
)

// Codec compresses BGRA frames (host) or decompresses packets back to BGRA
// (viewer). One instance serves one stream and is not safe for concurrent
// use.
type Codec interface {
	// Init prepares the codec for frames of the given size. Calling it again
	// with new dimensions reconfigures the codec.
	Init(width, height uint32, mode protocol.Compression) error
	// Encode compresses one width*height*4 BGRA buffer and reports whether
	// the packet is a keyframe.
	Encode(raw []byte) (packet []byte, keyframe bool, err error)
	// Decode returns the BGRA pixels of one packet.
	Decode(packet []byte) ([]byte, error)
	Close() error
}

// Factory creates a fresh codec instance.
type Factory func() (Codec, error)

type backend struct {
	name    string
	factory Factory
}

// Registry maps compression modes to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[protocol.Compression]backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[protocol.Compression]backend)}
}

// Default is the registry platform backends add themselves to.
var Default = NewRegistry()

// Register installs a named backend for mode, replacing any previous one.
func (r *Registry) Register(mode protocol.Compression, name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[mode] = backend{name: name, factory: f}
}

// New creates a codec for mode.
func (r *Registry) New(mode protocol.Compression) (Codec, error) {
	if mode == protocol.CompressionNone {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mode)
	}
	r.mu.RLock()
	b, ok := r.backends[mode]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no backend for %s", ErrUnsupported, mode)
	}
	c, err := b.factory()
	if err != nil {
		return nil, fmt.Errorf("create %s codec %q: %w", mode, b.name, err)
	}
	return c, nil
}

// Backend returns the name registered for mode.
func (r *Registry) Backend(mode protocol.Compression) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[mode]
	return b.name, ok
}

// Modes lists the modes with a registered backend, in wire order.
func (r *Registry) Modes() []protocol.Compression {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]protocol.Compression, 0, len(r.backends))
	for m := range r.backends {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}
