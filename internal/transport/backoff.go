package transport

import (
	"errors"
	"fmt"
	"time"
)

// Backoff controls retry sleeps for ReadFull and WriteAll. The sleep
// doubles from Initial up to Max while the transport reports would-block
// and resets as soon as any byte moves. Stall is the longest stretch with
// no progress before the operation gives up.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Stall   time.Duration
}

// DefaultBackoff is used when a zero Backoff is supplied.
var DefaultBackoff = Backoff{
	Initial: time.Millisecond,
	Max:     16 * time.Millisecond,
	Stall:   10 * time.Second,
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max < b.Initial {
		b.Max = max(DefaultBackoff.Max, b.Initial)
	}
	if b.Stall <= 0 {
		b.Stall = DefaultBackoff.Stall
	}
	return b
}

// retrier tracks the current sleep and the time of the last progress.
type retrier struct {
	b        Backoff
	delay    time.Duration
	progress time.Time
}

func newRetrier(b Backoff) *retrier {
	b = b.withDefaults()
	return &retrier{b: b, delay: b.Initial, progress: time.Now()}
}

func (r *retrier) advanced() {
	r.delay = r.b.Initial
	r.progress = time.Now()
}

// wait sleeps for the current delay, or returns ErrStalled once the stall
// window has elapsed without progress.
func (r *retrier) wait() error {
	if idle := time.Since(r.progress); idle >= r.b.Stall {
		return fmt.Errorf("%w: no progress for %s", ErrStalled, idle.Round(time.Millisecond))
	}
	time.Sleep(r.delay)
	r.delay = min(r.delay*2, r.b.Max)
	return nil
}

// ReadFull reads exactly len(p) bytes from t, retrying on ErrWouldBlock.
// It returns ErrClosed (wrapped) if the transport closes first.
func ReadFull(t Transport, p []byte, b Backoff) error {
	r := newRetrier(b)
	for off := 0; off < len(p); {
		n, err := t.TryRead(p[off:])
		off += n
		if n > 0 {
			r.advanced()
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			if n == 0 {
				if werr := r.wait(); werr != nil {
					return werr
				}
			}
		default:
			return err
		}
	}
	return nil
}

// WriteAll writes all of p to t, retrying partial writes and ErrWouldBlock.
func WriteAll(t Transport, p []byte, b Backoff) error {
	r := newRetrier(b)
	for off := 0; off < len(p); {
		n, err := t.TryWrite(p[off:])
		off += n
		if n > 0 {
			r.advanced()
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			if n == 0 {
				if werr := r.wait(); werr != nil {
					return werr
				}
			}
		default:
			return err
		}
	}
	return nil
}
