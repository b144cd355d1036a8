package live

import (
	"math/rand"
	"testing"
	"time"
)

func TestTimeline_GaplessWhenClockIsBehind(t *testing.T) {
	var tl Timeline
	durations := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 50 * time.Millisecond}

	var sum time.Duration
	for i, d := range durations {
		start := tl.Schedule(0, d)
		if start != sum {
			t.Fatalf("chunk %d start=%v want %v", i, start, sum)
		}
		sum += d
	}
	if tl.Cursor() != sum {
		t.Fatalf("cursor=%v want %v", tl.Cursor(), sum)
	}
}

func TestTimeline_ClampsToClock(t *testing.T) {
	var tl Timeline
	tl.Schedule(0, 300*time.Millisecond)

	start := tl.Schedule(time.Second, 50*time.Millisecond)
	if start != time.Second {
		t.Fatalf("start=%v want 1s", start)
	}
	if tl.Cursor() != 1050*time.Millisecond {
		t.Fatalf("cursor=%v want 1.05s", tl.Cursor())
	}
}

func TestTimeline_MonotonicAndNoOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var tl Timeline
	var now, prevEnd time.Duration
	for i := 0; i < 500; i++ {
		now += time.Duration(rng.Intn(80)) * time.Millisecond
		d := time.Duration(1+rng.Intn(120)) * time.Millisecond
		before := tl.Cursor()

		start := tl.Schedule(now, d)

		if start < now {
			t.Fatalf("step %d: start %v before clock %v", i, start, now)
		}
		if start < prevEnd {
			t.Fatalf("step %d: start %v overlaps previous end %v", i, start, prevEnd)
		}
		if tl.Cursor() < before {
			t.Fatalf("step %d: cursor moved backwards %v -> %v", i, before, tl.Cursor())
		}
		prevEnd = start + d
	}
}
