package input

import (
	"time"

	"github.com/mrdesktop/mrdesktop/internal/protocol"
)

const (
	// CoalesceDelay is the deadline from the first move in a batch.
	CoalesceDelay = 2 * time.Millisecond

	// CoalesceThreshold flushes immediately once either accumulated delta
	// reaches this many pixels.
	CoalesceThreshold = 200
)

// MoveCoalescer merges bursts of relative moves (key repeat, fast mouse)
// into one MouseMove. It flushes when:
//
//   - the 2ms deadline expires, measured from the first move in the batch
//     and not reset by later ones
//   - either axis reaches CoalesceThreshold
//   - Flush is called explicitly before a click, scroll or shutdown
//
// All methods are used from a single goroutine (the select loop).
type MoveCoalescer struct {
	dx, dy  int32
	pending bool
	timer   *time.Timer
	armed   bool
}

func NewMoveCoalescer() *MoveCoalescer {
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	return &MoveCoalescer{timer: t}
}

// Add accumulates a relative move. It returns true when the threshold was
// hit and the caller should flush now.
func (c *MoveCoalescer) Add(dx, dy int32) bool {
	if dx == 0 && dy == 0 {
		return false
	}
	if !c.pending && !c.armed {
		c.timer.Reset(CoalesceDelay)
		c.armed = true
	}
	c.dx += dx
	c.dy += dy
	c.pending = true
	return abs32(c.dx) >= CoalesceThreshold || abs32(c.dy) >= CoalesceThreshold
}

// Flush returns the accumulated move, or nil if nothing is pending. Moves
// that cancel out still flush as a zero move so ordering with a following
// click is preserved.
func (c *MoveCoalescer) Flush() *protocol.MouseMove {
	if c.armed {
		if !c.timer.Stop() {
			select {
			case <-c.timer.C:
			default:
			}
		}
		c.armed = false
	}
	if !c.pending {
		return nil
	}
	m := NewMouseMove(c.dx, c.dy)
	c.dx, c.dy, c.pending = 0, 0, false
	return m
}

// Timer returns the channel that fires when the deadline expires, or nil
// when no deadline is active.
func (c *MoveCoalescer) Timer() <-chan time.Time {
	if !c.armed {
		return nil
	}
	return c.timer.C
}

// Stop releases the timer.
func (c *MoveCoalescer) Stop() {
	c.timer.Stop()
	c.armed = false
}

// Pending reports whether a move is waiting to be flushed.
func (c *MoveCoalescer) Pending() bool {
	return c.pending
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
