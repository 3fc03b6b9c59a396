// Package stats tracks frame throughput for periodic status lines.
package stats

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Report is one status sample.
type Report struct {
	Frames    uint64
	FPS       float64 // average since the meter started
	LastBytes int     // payload size of the most recent frame
	CPU       float64 // host CPU load in percent, -1 if unavailable
}

// Meter counts frames and produces a Report every Every frames.
// Not safe for concurrent use.
type Meter struct {
	Every int
	// CPU samples host load; nil uses gopsutil.
	CPU func() (float64, error)

	start  time.Time
	frames uint64
	now    func() time.Time
}

func NewMeter(every int) *Meter {
	if every <= 0 {
		every = 30
	}
	return &Meter{Every: every, now: time.Now}
}

// Tick records one frame of n bytes. It returns a report when the frame
// count reaches a multiple of Every.
func (m *Meter) Tick(n int) (Report, bool) {
	now := m.now()
	if m.start.IsZero() {
		m.start = now
	}
	m.frames++
	if m.frames%uint64(m.Every) != 0 {
		return Report{}, false
	}

	r := Report{Frames: m.frames, LastBytes: n, CPU: -1}
	if elapsed := now.Sub(m.start); elapsed > 0 {
		r.FPS = float64(m.frames) / elapsed.Seconds()
	}
	sample := m.CPU
	if sample == nil {
		sample = hostCPU
	}
	if pct, err := sample(); err == nil {
		r.CPU = pct
	}
	return r, true
}

func (m *Meter) Frames() uint64 { return m.frames }

// hostCPU returns total CPU load since the previous call.
func hostCPU() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("cpu: no samples")
	}
	return pcts[0], nil
}

// FormatBytes renders n with a binary unit, e.g. "1.17 MB".
func FormatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit && exp < 3; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}
