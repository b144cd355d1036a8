package audiodev

import "sync"

// windower re-cuts device callbacks of arbitrary length into fixed windows.
type windower struct {
	mu      sync.Mutex
	size    int
	pending []float32
}

func newWindower(size int) *windower {
	return &windower{size: size, pending: make([]float32, 0, size*2)}
}

// push appends samples and returns every complete window.
func (w *windower) push(samples []float32) [][]float32 {
	if w.size <= 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, samples...)
	var out [][]float32
	for len(w.pending) >= w.size {
		win := make([]float32, w.size)
		copy(win, w.pending[:w.size])
		out = append(out, win)
		w.pending = append(w.pending[:0], w.pending[w.size:]...)
	}
	return out
}
