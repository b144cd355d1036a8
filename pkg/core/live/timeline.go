package live

import "time"

// Timeline tracks the playback cursor of an output context: the time at which
// the next inbound chunk must start so consecutive chunks play back to back.
type Timeline struct {
	cursor time.Duration
}

// Schedule returns the start time for a chunk of length d given the output
// clock now, and advances the cursor past it. The start is never earlier than
// now, so a stalled stream resumes immediately instead of in the past.
func (t *Timeline) Schedule(now, d time.Duration) time.Duration {
	if now > t.cursor {
		t.cursor = now
	}
	start := t.cursor
	if d > 0 {
		t.cursor += d
	}
	return start
}

// Cursor returns the end of the last scheduled chunk.
func (t *Timeline) Cursor() time.Duration {
	return t.cursor
}
