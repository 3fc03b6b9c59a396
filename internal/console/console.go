package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/mrdesktop/mrdesktop/internal/input"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

// ClickHold is how long a button stays pressed for a click.
const ClickHold = 50 * time.Millisecond

// Sender is the subset of input.Sender the console uses.
type Sender interface {
	Click(button protocol.MouseButton, pressed bool) error
	Scroll(dx, dy int32) error
	Send(msg any) error
}

// ErrQuit is returned by Run when the user asked to leave.
var ErrQuit = errors.New("console: quit requested")

// Run reads keystrokes from in until the user quits, in reaches EOF, ctx
// ends, or a send fails. Movement keys are coalesced so key repeat does
// not flood the connection.
func Run(ctx context.Context, in io.Reader, s Sender, log zerolog.Logger) error {
	keys := make(chan []byte, 4)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	// The reader exits after its next Read once Run has returned; a
	// blocked Read on a terminal cannot be interrupted.
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			select {
			case <-done:
				return
			default:
			}
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case keys <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var tr KeyTranslator
	coal := input.NewMoveCoalescer()
	defer coal.Stop()

	flush := func() error {
		if m := coal.Flush(); m != nil {
			return s.Send(m)
		}
		return nil
	}
	handle := func(chunk []byte) error {
		for _, a := range tr.Translate(chunk) {
			if err := apply(s, coal, flush, a, log); err != nil {
				flush()
				return err
			}
		}
		return nil
	}

	for {
		select {
		case chunk := <-keys:
			if err := handle(chunk); err != nil {
				return err
			}
		case <-coal.Timer():
			if err := flush(); err != nil {
				return err
			}
		case err := <-readErr:
			// Everything read before the error is already queued.
			for len(keys) > 0 {
				if herr := handle(<-keys); herr != nil {
					return herr
				}
			}
			if ferr := flush(); ferr != nil {
				return ferr
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read keyboard: %w", err)
		case <-ctx.Done():
			flush()
			return ctx.Err()
		}
	}
}

func apply(s Sender, coal *input.MoveCoalescer, flush func() error, a Action, log zerolog.Logger) error {
	switch a.Kind {
	case ActMove:
		if coal.Add(a.DX, a.DY) {
			return flush()
		}
		return nil
	case ActClick:
		if err := flush(); err != nil {
			return err
		}
		if err := s.Click(a.Button, true); err != nil {
			return err
		}
		time.Sleep(ClickHold)
		if err := s.Click(a.Button, false); err != nil {
			return err
		}
		log.Debug().Stringer("button", a.Button).Msg("click")
		return nil
	case ActScroll:
		if err := flush(); err != nil {
			return err
		}
		return s.Scroll(a.DX, a.DY)
	case ActQuit:
		return ErrQuit
	}
	return nil
}

// MakeRaw puts fd into raw mode if it is a terminal and returns a function
// restoring the previous state. For non-terminals it does nothing.
func MakeRaw(fd int) (restore func(), err error) {
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("make raw: %w", err)
	}
	return func() { term.Restore(fd, old) }, nil
}

var _ Sender = (*input.Sender)(nil)
