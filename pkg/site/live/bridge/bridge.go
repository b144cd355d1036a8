// Package bridge implements live.Devices on top of a browser WebSocket. The
// browser owns the real microphone and speakers; the bridge turns their
// traffic into the capture windows and scheduled playback the pipeline
// expects.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/audio"
	"github.com/vango-go/portfolio/pkg/core/live"
	"github.com/vango-go/portfolio/pkg/site/live/protocol"
)

var (
	// ErrQueueFull is returned when an outbound frame cannot be queued
	// without blocking.
	ErrQueueFull = errors.New("bridge: outbound queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge: closed")
)

type Config struct {
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	QueueSize         int
	MicrophoneTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MicrophoneTimeout <= 0 {
		c.MicrophoneTimeout = 60 * time.Second
	}
	return c
}

type micDecision struct {
	granted bool
	reason  string
}

// Bridge is one browser connection. Frames for the browser are queued here
// and written by Run.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	priority chan outboundFrame
	normal   chan outboundFrame
	dropped  atomic.Int64

	mic        chan micDecision
	micStopped atomic.Bool

	mu       sync.Mutex
	capture  func([]float32)
	window   int
	pending  []float32
	canceled map[uint64]struct{}
}

// New returns a bridge bound to ctx. Cancelling ctx has the same effect as Close.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Bridge {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	bctx, cancel := context.WithCancel(ctx)
	return &Bridge{
		cfg:      cfg,
		logger:   logger,
		ctx:      bctx,
		cancel:   cancel,
		priority: make(chan outboundFrame, cfg.QueueSize),
		normal:   make(chan outboundFrame, cfg.QueueSize),
		mic:      make(chan micDecision, 1),
		canceled: make(map[uint64]struct{}),
	}
}

// Close stops accepting frames and lets Run flush what is queued.
func (b *Bridge) Close() {
	b.cancel()
}

// Done is closed after Close.
func (b *Bridge) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Dropped reports frames discarded because a queue was full.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Run writes queued frames to ws until the bridge is closed or a write fails.
func (b *Bridge) Run(ws wsWriter) error {
	w := outboundWriter{
		ws:         ws,
		ctx:        b.ctx,
		cfg:        b.cfg,
		priority:   b.priority,
		normal:     b.normal,
		isCanceled: b.isCanceled,
	}
	return w.Run()
}

// GrantMicrophone delivers the browser's answer to a microphone request.
// Only the first answer per request is kept.
func (b *Bridge) GrantMicrophone(granted bool, reason string) {
	select {
	case b.mic <- micDecision{granted: granted, reason: reason}:
	default:
	}
}

// PushSamples feeds microphone samples from the browser. They are re-cut into
// windows of the size the pipeline asked for. Samples arriving while no
// capture is active are discarded.
func (b *Bridge) PushSamples(samples []float32) {
	if b.micStopped.Load() {
		return
	}
	b.mu.Lock()
	fn, window := b.capture, b.window
	if fn == nil || window <= 0 {
		b.pending = b.pending[:0]
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, samples...)
	var windows [][]float32
	for len(b.pending) >= window {
		w := make([]float32, window)
		copy(w, b.pending[:window])
		windows = append(windows, w)
		b.pending = append(b.pending[:0], b.pending[window:]...)
	}
	b.mu.Unlock()

	for _, w := range windows {
		fn(w)
	}
}

// SendStatus queues a status frame.
func (b *Bridge) SendStatus(state live.State, message string) {
	_ = b.sendJSON(true, protocol.ServerStatus{Type: "status", State: state.String(), Message: message})
}

// SendTranscript queues the current value of a transcript entry.
func (b *Bridge) SendTranscript(index int, e live.Entry) {
	_ = b.sendJSON(true, protocol.ServerTranscript{
		Type:    "transcript",
		Index:   index,
		Speaker: string(e.Speaker),
		Text:    e.Text,
		IsFinal: e.Final,
	})
}

// SendError queues an error frame.
func (b *Bridge) SendError(code, message string, close bool) {
	_ = b.sendJSON(true, protocol.ServerError{Type: "error", Code: code, Message: message, Close: close})
}

// SendWarning queues a warning frame. Its signature matches sessions.Handle.Warn.
func (b *Bridge) SendWarning(code, message string) error {
	return b.sendJSON(true, protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

func (b *Bridge) sendJSON(priority bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.enqueue(priority, outboundFrame{textPayload: payload})
}

func (b *Bridge) enqueue(priority bool, f outboundFrame) error {
	if b.ctx.Err() != nil {
		return ErrClosed
	}
	ch := b.normal
	if priority {
		ch = b.priority
	}
	select {
	case ch <- f:
		return nil
	default:
		b.dropped.Add(1)
		return ErrQueueFull
	}
}

func (b *Bridge) cancelSource(id uint64) {
	b.mu.Lock()
	b.canceled[id] = struct{}{}
	b.mu.Unlock()
}

func (b *Bridge) isCanceled(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.canceled[id]
	return ok
}

func (b *Bridge) setCapture(window int, fn func([]float32)) {
	b.mu.Lock()
	b.capture = fn
	b.window = window
	b.pending = b.pending[:0]
	b.mu.Unlock()
}

// OpenMicrophone asks the browser for microphone access and waits for the
// answer. A refusal or no answer within the configured timeout is reported as
// permission denied.
func (b *Bridge) OpenMicrophone(ctx context.Context) (live.MediaStream, error) {
	// Drop a stale answer from an earlier request.
	select {
	case <-b.mic:
	default:
	}
	timeout := b.cfg.MicrophoneTimeout
	if err := b.sendJSON(true, protocol.ServerMicrophoneRequest{
		Type:      "microphone_request",
		TimeoutMS: timeout.Milliseconds(),
	}); err != nil {
		return nil, core.NewPermissionDeniedError("microphone request could not be delivered", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-b.mic:
		if !d.granted {
			msg := "microphone access denied"
			if d.reason != "" {
				msg += ": " + d.reason
			}
			return nil, core.NewPermissionDeniedError(msg, nil)
		}
		b.micStopped.Store(false)
		return &micStream{b: b}, nil
	case <-timer.C:
		return nil, core.NewPermissionDeniedError("microphone request timed out", nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.ctx.Done():
		return nil, core.NewPermissionDeniedError("connection closed before microphone access was granted", ErrClosed)
	}
}

func (b *Bridge) NewInputContext(sampleRate int) (live.InputContext, error) {
	if sampleRate != audio.InputSampleRate {
		return nil, core.NewInvalidRequestErrorWithParam("unsupported input sample rate", "sample_rate")
	}
	return &inputContext{b: b}, nil
}

func (b *Bridge) NewOutputContext(sampleRate int) (live.OutputContext, error) {
	if sampleRate <= 0 {
		return nil, core.NewInvalidRequestErrorWithParam("output sample rate must be > 0", "sample_rate")
	}
	return &outputContext{
		b:      b,
		start:  time.Now(),
		format: audio.Format{SampleRate: sampleRate, Channels: 1},
	}, nil
}

type micStream struct {
	b *Bridge
}

func (m *micStream) Stop() {
	m.b.micStopped.Store(true)
}

type inputContext struct {
	b      *Bridge
	closed atomic.Bool
}

func (c *inputContext) Capture(stream live.MediaStream, windowSamples int, fn func([]float32)) (live.CaptureNode, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if stream == nil || fn == nil || windowSamples <= 0 {
		return nil, errors.New("bridge: invalid capture arguments")
	}
	c.b.setCapture(windowSamples, fn)
	return &captureNode{b: c.b}, nil
}

func (c *inputContext) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.b.setCapture(0, nil)
	}
	return nil
}

type captureNode struct {
	b    *Bridge
	once sync.Once
}

func (n *captureNode) Disconnect() {
	n.once.Do(func() { n.b.setCapture(0, nil) })
}

// outputContext schedules playback on the browser. Its clock starts when it is
// created; audio frames carry both the scheduled start and the clock value at
// send time so the browser can align them to its own audio clock.
type outputContext struct {
	b      *Bridge
	start  time.Time
	format audio.Format
	nextID atomic.Uint64
	closed atomic.Bool
}

func (c *outputContext) Now() time.Duration {
	return time.Since(c.start)
}

func (c *outputContext) Play(at time.Duration, samples []float32, onEnded func()) (live.PlaybackSource, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	id := c.nextID.Add(1)
	now := c.Now()
	d := c.format.Duration(len(samples))

	payload, err := json.Marshal(protocol.ServerAudio{
		Type:       "audio",
		SourceID:   id,
		StartMS:    millis(at),
		DurationMS: millis(d),
		NowMS:      millis(now),
		AudioB64:   audio.EncodeBase64(audio.Float32ToPCM16(samples)),
	})
	if err != nil {
		return nil, err
	}
	if err := c.b.enqueue(false, outboundFrame{textPayload: payload, sourceID: id}); err != nil {
		return nil, err
	}

	src := &playbackSource{b: c.b, id: id, onEnded: onEnded}
	wait := at + d - now
	if wait < 0 {
		wait = 0
	}
	src.timer = time.AfterFunc(wait, src.end)
	return src, nil
}

func (c *outputContext) Close() error {
	c.closed.Store(true)
	return nil
}

type playbackSource struct {
	b       *Bridge
	id      uint64
	timer   *time.Timer
	onEnded func()
	done    atomic.Bool
}

func (s *playbackSource) end() {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	if s.onEnded != nil {
		s.onEnded()
	}
}

// Stop cancels the source. onEnded is not called for a stopped source.
func (s *playbackSource) Stop() {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	s.timer.Stop()
	s.b.cancelSource(s.id)
	_ = s.b.sendJSON(true, protocol.ServerAudioStop{Type: "audio_stop", SourceID: s.id})
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
