package lifecycle

import "sync/atomic"

// Lifecycle is process state shared across handlers. Readiness reports
// draining and new live sessions are refused while it is set.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
