// Package session ties one transport, one role and at most one codec into
// a running host or viewer.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/transport"
)

// Role is the side of the connection a session plays.
type Role int

const (
	RoleHost Role = iota
	RoleViewer
)

func (r Role) String() string {
	if r == RoleViewer {
		return "viewer"
	}
	return "host"
}

// Session owns exactly one Transport. Close tears it down once; Done is
// closed afterwards and Err reports why.
type Session struct {
	ID   string
	Role Role

	t   transport.Transport
	f   *transport.Framer
	log zerolog.Logger

	mu   sync.Mutex
	mode protocol.Compression

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

func newSession(role Role, t transport.Transport, b transport.Backoff, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:   id,
		Role: role,
		t:    t,
		f:    transport.NewFramer(t, b),
		log: log.With().
			Str("session", id[:8]).
			Str("role", role.String()).
			Str("peer", t.RemoteAddr()).
			Logger(),
		done: make(chan struct{}),
	}
}

// Framer returns the session's message framer.
func (s *Session) Framer() *transport.Framer { return s.f }

// Mode returns the negotiated compression mode.
func (s *Session) Mode() protocol.Compression {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) setMode(m protocol.Compression) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// Close closes the transport with err as the cause. Only the first call
// has any effect.
func (s *Session) Close(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.t.Close()
		close(s.done)
		if err != nil {
			s.log.Info().Err(err).Msg("session closed")
		} else {
			s.log.Info().Msg("session closed")
		}
	})
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the cause passed to the first Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
