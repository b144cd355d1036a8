package audiodev

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// scheduler mixes scheduled sources into a float32 LE stream. Its clock is the
// number of samples handed to the device, so Now only advances while the
// device is pulling audio.
type scheduler struct {
	rate int

	mu       sync.Mutex
	rendered int64
	sources  []*source
	closed   bool
}

type source struct {
	s       *scheduler
	start   int64
	samples []float32
	onEnded func()
	stopped bool
}

func newScheduler(rate int) *scheduler {
	return &scheduler{rate: rate}
}

func (s *scheduler) now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationOf(s.rendered)
}

func (s *scheduler) durationOf(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(s.rate)
}

func (s *scheduler) sampleAt(d time.Duration) int64 {
	return int64(d) * int64(s.rate) / int64(time.Second)
}

// schedule queues samples to start at clock time at. A start in the past
// plays immediately.
func (s *scheduler) schedule(at time.Duration, samples []float32, onEnded func()) *source {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.sampleAt(at)
	if start < s.rendered {
		start = s.rendered
	}
	src := &source{s: s, start: start, samples: samples, onEnded: onEnded}
	if s.closed {
		src.stopped = true
		return src
	}
	s.sources = append(s.sources, src)
	return src
}

// Stop removes the source without calling its onEnded.
func (src *source) Stop() {
	s := src.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.stopped {
		return
	}
	src.stopped = true
	for i, other := range s.sources {
		if other == src {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			break
		}
	}
}

// Read implements io.Reader for the output player. Silence fills gaps so the
// clock keeps running.
func (s *scheduler) Read(p []byte) (int, error) {
	n := len(p) / 4
	if n == 0 {
		return 0, nil
	}

	s.mu.Lock()
	from := s.rendered
	to := from + int64(n)
	mix := make([]float32, n)
	var ended []func()
	keep := s.sources[:0]
	for _, src := range s.sources {
		end := src.start + int64(len(src.samples))
		lo, hi := max(src.start, from), min(end, to)
		for t := lo; t < hi; t++ {
			mix[t-from] += src.samples[t-src.start]
		}
		if end <= to {
			src.stopped = true
			if src.onEnded != nil {
				ended = append(ended, src.onEnded)
			}
			continue
		}
		keep = append(keep, src)
	}
	for i := len(keep); i < len(s.sources); i++ {
		s.sources[i] = nil
	}
	s.sources = keep
	s.rendered = to
	s.mu.Unlock()

	for i, v := range mix {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	for _, fn := range ended {
		go fn()
	}
	return n * 4, nil
}

// close drops every pending source without calling onEnded.
func (s *scheduler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		src.stopped = true
	}
	s.sources = nil
	s.closed = true
}

func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}
