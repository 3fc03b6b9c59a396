package console

import (
	"reflect"
	"testing"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

func TestKeyTranslator(t *testing.T) {
	up, down := move(0, -MouseSpeed), move(0, MouseSpeed)
	left, right := move(-MouseSpeed, 0), move(MouseSpeed, 0)
	quit := Action{Kind: ActQuit}

	tests := []struct {
		name  string
		input string
		want  []Action
	}{
		{name: "wasd", input: "wasd", want: []Action{up, left, down, right}},
		{name: "uppercase", input: "WD", want: []Action{up, right}},
		{name: "arrow keys", input: "\x1b[A\x1b[B\x1b[D\x1b[C", want: []Action{up, down, left, right}},
		{name: "application cursor keys", input: "\x1bOA", want: []Action{up}},
		{name: "space is left click", input: " ", want: []Action{{Kind: ActClick, Button: protocol.ButtonLeft}}},
		{name: "enter is right click", input: "\r", want: []Action{{Kind: ActClick, Button: protocol.ButtonRight}}},
		{name: "scroll", input: "qe", want: []Action{{Kind: ActScroll, DY: 1}, {Kind: ActScroll, DY: -1}}},
		{name: "lone escape quits", input: "w\x1b", want: []Action{up, quit}},
		{name: "escape then other key quits", input: "\x1bx", want: []Action{quit}},
		{name: "ctrl-c quits and stops", input: "\x03w", want: []Action{quit}},
		{name: "unknown keys ignored", input: "zx1", want: nil},
		{name: "unknown cursor key ignored", input: "\x1b[Zd", want: []Action{right}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var k KeyTranslator
			got := k.Translate([]byte(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Translate(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

// An arrow sequence split across reads is still an arrow when the split
// falls after the '['.
func TestKeyTranslatorSplitSequence(t *testing.T) {
	var k KeyTranslator
	if got := k.Translate([]byte("\x1b[")); len(got) != 0 {
		t.Fatalf("partial sequence produced %+v", got)
	}
	got := k.Translate([]byte("C"))
	if len(got) != 1 || got[0] != move(MouseSpeed, 0) {
		t.Fatalf("expected right move, got %+v", got)
	}
}
