// Package audiodev implements live.Devices on the local sound card: malgo
// captures the microphone and oto plays the scheduled output.
package audiodev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/audio"
	"github.com/vango-go/portfolio/pkg/core/live"
)

// capturePeriodMs is the malgo capture callback period.
const capturePeriodMs = 20

// outputBuffer is the oto buffer length. Smaller means lower latency and a
// higher risk of underruns.
const outputBuffer = 100 * time.Millisecond

// Devices opens the default capture and playback devices. One Devices serves
// one conversation at a time; oto allows a single context per process.
type Devices struct {
	logger      *slog.Logger
	captureRate int

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext

	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
}

func New(logger *slog.Logger) *Devices {
	if logger == nil {
		logger = slog.Default()
	}
	return &Devices{logger: logger, captureRate: audio.InputSampleRate}
}

// OpenMicrophone acquires and starts the default capture device. Failure to
// reach a backend or device is reported as permission denied. Samples read
// before Capture attaches a consumer are discarded.
func (d *Devices) OpenMicrophone(ctx context.Context) (live.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.malgoCtx == nil {
		cfg := malgo.ContextConfig{}
		cfg.ThreadPriority = malgo.ThreadPriorityRealtime
		mctx, err := malgo.InitContext(nil, cfg, nil)
		if err != nil {
			return nil, core.NewPermissionDeniedError("microphone is unavailable", err)
		}
		d.malgoCtx = mctx
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(d.captureRate)
	cfg.PeriodSizeInMilliseconds = capturePeriodMs

	mic := &micStream{}
	device, err := malgo.InitDevice(d.malgoCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { mic.deliver(input) },
	})
	if err != nil {
		return nil, core.NewPermissionDeniedError("microphone could not be opened", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, core.NewPermissionDeniedError("microphone could not be started", err)
	}
	mic.device = device
	d.logger.Debug("microphone open", "sample_rate", d.captureRate)
	return mic, nil
}

// NewInputContext serves windows at the rate the microphone was opened with.
func (d *Devices) NewInputContext(sampleRate int) (live.InputContext, error) {
	if sampleRate != d.captureRate {
		return nil, core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("input sample rate must be %d", d.captureRate), "sample_rate")
	}
	return &inputContext{}, nil
}

func (d *Devices) NewOutputContext(sampleRate int) (live.OutputContext, error) {
	if sampleRate <= 0 {
		return nil, core.NewInvalidRequestErrorWithParam("output sample rate must be > 0", "sample_rate")
	}
	d.otoOnce.Do(func() {
		octx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   outputBuffer,
		})
		if err != nil {
			d.otoErr = fmt.Errorf("audiodev: init speaker: %w", err)
			return
		}
		<-ready
		d.otoCtx = octx
		d.otoRate = sampleRate
		d.logger.Debug("speaker ready", "sample_rate", sampleRate, "buffer", outputBuffer)
	})
	if d.otoErr != nil {
		return nil, d.otoErr
	}
	if d.otoRate != sampleRate {
		return nil, fmt.Errorf("audiodev: speaker already opened at %d Hz", d.otoRate)
	}

	sched := newScheduler(sampleRate)
	player := d.otoCtx.NewPlayer(sched)
	player.Play()
	return &outputContext{sched: sched, player: player}, nil
}

// Close releases the capture backend.
func (d *Devices) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.malgoCtx == nil {
		return nil
	}
	err := d.malgoCtx.Uninit()
	d.malgoCtx.Free()
	d.malgoCtx = nil
	return err
}

// micStream owns a started capture device. The device callback hands raw
// frames to whichever sink Capture attached last.
type micStream struct {
	device *malgo.Device

	mu      sync.Mutex
	sink    *captureNode
	stopped bool
}

func (m *micStream) deliver(input []byte) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink == nil {
		return
	}
	samples, err := audio.ParseFloat32LE(input)
	if err != nil {
		return
	}
	sink.push(samples)
}

func (m *micStream) attach(n *captureNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("audiodev: microphone stopped")
	}
	m.sink = n
	return nil
}

func (m *micStream) detach(n *captureNode) {
	m.mu.Lock()
	if m.sink == n {
		m.sink = nil
	}
	m.mu.Unlock()
}

// Stop releases the capture device. It is safe to call more than once.
func (m *micStream) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.sink = nil
	device := m.device
	m.mu.Unlock()
	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
}

type inputContext struct {
	mu    sync.Mutex
	nodes []*captureNode
}

func (c *inputContext) Capture(stream live.MediaStream, windowSamples int, fn func([]float32)) (live.CaptureNode, error) {
	mic, ok := stream.(*micStream)
	if !ok {
		return nil, errors.New("audiodev: stream was not opened by this device set")
	}
	if windowSamples <= 0 {
		return nil, core.NewInvalidRequestErrorWithParam("window must be > 0", "window_samples")
	}
	node := &captureNode{mic: mic, win: newWindower(windowSamples), fn: fn}
	if err := mic.attach(node); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.nodes = append(c.nodes, node)
	c.mu.Unlock()
	return node, nil
}

func (c *inputContext) Close() error {
	c.mu.Lock()
	nodes := c.nodes
	c.nodes = nil
	c.mu.Unlock()
	for _, n := range nodes {
		n.Disconnect()
	}
	return nil
}

// captureNode windows frames for one consumer until disconnected.
type captureNode struct {
	mic          *micStream
	win          *windower
	fn           func([]float32)
	disconnected atomic.Bool
}

func (n *captureNode) push(samples []float32) {
	if n.disconnected.Load() {
		return
	}
	for _, w := range n.win.push(samples) {
		n.fn(w)
	}
}

func (n *captureNode) Disconnect() {
	if n.disconnected.Swap(true) {
		return
	}
	n.mic.detach(n)
}

type outputContext struct {
	sched  *scheduler
	player *oto.Player
	closed atomic.Bool
}

func (c *outputContext) Now() time.Duration { return c.sched.now() }

func (c *outputContext) Play(at time.Duration, samples []float32, onEnded func()) (live.PlaybackSource, error) {
	if c.closed.Load() {
		return nil, errors.New("audiodev: output context closed")
	}
	return c.sched.schedule(at, samples, onEnded), nil
}

func (c *outputContext) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.sched.close()
	return c.player.Close()
}
