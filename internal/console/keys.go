// Package console turns raw terminal keystrokes into mouse input for the
// viewer.
package console

import "github.com/mrdesktop/mrdesktop/internal/protocol"

// MouseSpeed is the number of pixels one movement key moves the pointer.
const MouseSpeed = 10

// ActionKind identifies what a key press asks for.
type ActionKind int

const (
	ActMove ActionKind = iota
	ActClick
	ActScroll
	ActQuit
)

// Action is one translated key press.
type Action struct {
	Kind   ActionKind
	DX, DY int32
	Button protocol.MouseButton
}

// keyState tracks position within an escape sequence.
type keyState int

const (
	keyNone   keyState = iota
	keyEsc             // saw ESC
	keyCursor          // saw ESC [ or ESC O, expecting a final byte
)

// KeyTranslator maps raw terminal input to Actions:
//
//	w/a/s/d and arrow keys  move by MouseSpeed
//	space                   left click
//	enter                   right click
//	q / e                   scroll up / down
//	ESC or Ctrl-C           quit
//
// An ESC that ends a read chunk is a bare ESC key press; an ESC that starts
// a cursor sequence is not.
type KeyTranslator struct {
	state keyState
}

// Translate runs input through the translator and returns the resulting
// actions. Processing stops at the first ActQuit.
func (k *KeyTranslator) Translate(input []byte) []Action {
	var out []Action
	for _, b := range input {
		switch k.state {
		case keyNone:
			if b == 0x1b {
				k.state = keyEsc
				continue
			}
			if a, ok := plainKey(b); ok {
				out = append(out, a)
				if a.Kind == ActQuit {
					return out
				}
			}

		case keyEsc:
			if b == '[' || b == 'O' {
				k.state = keyCursor
				continue
			}
			k.state = keyNone
			return append(out, Action{Kind: ActQuit})

		case keyCursor:
			k.state = keyNone
			if a, ok := arrowKey(b); ok {
				out = append(out, a)
			}
		}
	}
	if k.state == keyEsc {
		k.state = keyNone
		out = append(out, Action{Kind: ActQuit})
	}
	return out
}

func move(dx, dy int32) Action { return Action{Kind: ActMove, DX: dx, DY: dy} }

func plainKey(b byte) (Action, bool) {
	switch b {
	case 'w', 'W':
		return move(0, -MouseSpeed), true
	case 's', 'S':
		return move(0, MouseSpeed), true
	case 'a', 'A':
		return move(-MouseSpeed, 0), true
	case 'd', 'D':
		return move(MouseSpeed, 0), true
	case ' ':
		return Action{Kind: ActClick, Button: protocol.ButtonLeft}, true
	case '\r', '\n':
		return Action{Kind: ActClick, Button: protocol.ButtonRight}, true
	case 'q', 'Q':
		return Action{Kind: ActScroll, DY: 1}, true
	case 'e', 'E':
		return Action{Kind: ActScroll, DY: -1}, true
	case 0x03: // Ctrl-C
		return Action{Kind: ActQuit}, true
	}
	return Action{}, false
}

func arrowKey(b byte) (Action, bool) {
	switch b {
	case 'A':
		return move(0, -MouseSpeed), true
	case 'B':
		return move(0, MouseSpeed), true
	case 'C':
		return move(MouseSpeed, 0), true
	case 'D':
		return move(-MouseSpeed, 0), true
	}
	return Action{}, false
}
