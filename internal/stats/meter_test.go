package stats

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestMeterReportsEveryN(t *testing.T) {
	m := NewMeter(3)
	m.CPU = func() (float64, error) { return 12.5, nil }

	base := time.Unix(1000, 0)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 100 * time.Millisecond)
	}

	for i := 1; i <= 2; i++ {
		if _, ok := m.Tick(10); ok {
			t.Fatalf("unexpected report at frame %d", i)
		}
	}
	r, ok := m.Tick(42)
	if !ok {
		t.Fatal("expected report at frame 3")
	}
	if r.Frames != 3 || r.LastBytes != 42 || r.CPU != 12.5 {
		t.Fatalf("unexpected report %+v", r)
	}
	// 3 frames over 200ms.
	if math.Abs(r.FPS-15) > 0.001 {
		t.Fatalf("fps = %f, want 15", r.FPS)
	}
}

func TestMeterCPUUnavailable(t *testing.T) {
	m := NewMeter(1)
	m.CPU = func() (float64, error) { return 0, errors.New("unsupported") }
	r, ok := m.Tick(1)
	if !ok || r.CPU != -1 {
		t.Fatalf("expected CPU -1, got %+v", r)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int]string{
		512:       "512 B",
		2048:      "2.00 KB",
		1_228_800: "1.17 MB",
	}
	for n, want := range cases {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
