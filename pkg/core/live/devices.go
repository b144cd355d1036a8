package live

import (
	"context"
	"time"
)

// Devices opens the audio hardware a conversation needs.
type Devices interface {
	// OpenMicrophone asks for microphone access. A refusal should be reported
	// as a permission_denied core error.
	OpenMicrophone(ctx context.Context) (MediaStream, error)
	NewInputContext(sampleRate int) (InputContext, error)
	NewOutputContext(sampleRate int) (OutputContext, error)
}

// MediaStream is an open microphone.
type MediaStream interface {
	// Stop stops every track of the stream.
	Stop()
}

// InputContext turns a media stream into fixed-size sample windows.
type InputContext interface {
	// Capture calls fn with each window of windowSamples mono samples in
	// [-1, 1] until the returned node is disconnected. fn is called from a
	// device goroutine and must not block.
	Capture(stream MediaStream, windowSamples int, fn func(samples []float32)) (CaptureNode, error)
	Close() error
}

// CaptureNode is an active capture graph.
type CaptureNode interface {
	Disconnect()
}

// OutputContext plays sample buffers against its own monotonic clock.
type OutputContext interface {
	// Now returns the context clock.
	Now() time.Duration
	// Play schedules samples to start at the given clock time. onEnded is
	// called once, from another goroutine, when the source finishes playing
	// naturally.
	Play(at time.Duration, samples []float32, onEnded func()) (PlaybackSource, error)
	Close() error
}

// PlaybackSource is one scheduled buffer.
type PlaybackSource interface {
	Stop()
}
