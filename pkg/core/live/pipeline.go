package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/audio"
)

const (
	DefaultWindowSamples  = 4096
	DefaultConnectTimeout = 20 * time.Second

	endedQueueSize = 32

	// A connection that only yields undecodable messages is treated as broken.
	maxDecodeFailuresInRow = 16
)

// ErrAlreadyStarted is returned by Run when the pipeline was already run or closed.
var ErrAlreadyStarted = errors.New("live: pipeline already started")

// Config tunes a pipeline. Zero values take defaults.
type Config struct {
	Session SessionConfig

	// WindowSamples is the capture window length.
	WindowSamples int
	// ConnectTimeout bounds dialing plus the setup acknowledgement.
	ConnectTimeout time.Duration

	InputSampleRate  int
	OutputSampleRate int
}

func (c Config) withDefaults() Config {
	if c.WindowSamples <= 0 {
		c.WindowSamples = DefaultWindowSamples
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = audio.InputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = audio.OutputSampleRate
	}
	return c
}

// Hooks observe a running pipeline. They are called from the pipeline's loop
// goroutine and must not block or call Close.
type Hooks struct {
	Status     func(state State, message string)
	Transcript func(index int, entry Entry)
}

// Dependencies are the collaborators of a pipeline.
type Dependencies struct {
	Devices Devices
	Dialer  Dialer
	Logger  *slog.Logger
	Hooks   Hooks
}

// Stats counts pipeline activity.
type Stats struct {
	UnitsSent      int64
	UnitsDropped   int64
	ChunksPlayed   int64
	DecodeFailures int64
}

// Pipeline is one live conversation. Create it with New, drive it with Run and
// stop it with Close or by cancelling the Run context.
type Pipeline struct {
	cfg      Config
	deps     Dependencies
	logger   *slog.Logger
	format   audio.Format
	mimeType string

	state atomic.Int32

	mu         sync.Mutex
	status     string
	started    bool
	cancel     context.CancelFunc
	transcript Transcript

	unitsSent      atomic.Int64
	unitsDropped   atomic.Int64
	chunksPlayed   atomic.Int64
	decodeFailures atomic.Int64

	outbound chan RealtimeInput
	ended    chan uint64
	loopDone chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	// Owned by the goroutine running Run.
	timeline   Timeline
	sources    map[uint64]PlaybackSource
	nextSource uint64

	session      Session
	stream       MediaStream
	capture      CaptureNode
	input        InputContext
	output       OutputContext
	inputClosed  bool
	outputClosed bool
}

type decodeResult struct {
	samples []float32
	err     error
}

// New validates dependencies and returns an idle pipeline.
func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	if deps.Devices == nil {
		return nil, errors.New("live: missing devices dependency")
	}
	if deps.Dialer == nil {
		return nil, errors.New("live: missing dialer dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		format:   audio.Format{SampleRate: cfg.OutputSampleRate, Channels: 1},
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", cfg.InputSampleRate),
		status:   StatusInitializing,
		outbound: make(chan RealtimeInput, 1),
		ended:    make(chan uint64, endedQueueSize),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
		sources:  make(map[uint64]PlaybackSource),
	}
	return p, nil
}

// State returns the current connection state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Status returns the current operator-facing status string.
func (p *Pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Transcript returns a copy of the transcript so far.
func (p *Pipeline) Transcript() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcript.Entries()
}

// Stats returns a snapshot of the activity counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		UnitsSent:      p.unitsSent.Load(),
		UnitsDropped:   p.unitsDropped.Load(),
		ChunksPlayed:   p.chunksPlayed.Load(),
		DecodeFailures: p.decodeFailures.Load(),
	}
}

// Done is closed once Run has returned and every resource is released.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Close stops the conversation from any goroutine other than a hook and
// waits for teardown to finish. Closing an idle pipeline prevents it from
// running.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.status = StatusConnectionClosed
		p.state.Store(int32(StateClosed))
		close(p.done)
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-p.done
}

// Run executes the conversation until the remote side closes it, a failure
// occurs or ctx is cancelled. It returns nil when the session ends in
// StateClosed and a *core.Error when it ends in StateError.
func (p *Pipeline) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	err := p.run(ctx)

	close(p.loopDone)
	cancel()
	p.teardown()
	p.wg.Wait()
	close(p.done)
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	p.transition(StateInitializing, StatusRequestingMic)

	stream, err := p.deps.Devices.OpenMicrophone(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.closed()
		}
		return p.fail(StatusInitializeFailure, permissionDenied(err))
	}
	p.stream = stream

	p.input, err = p.deps.Devices.NewInputContext(p.cfg.InputSampleRate)
	if err != nil {
		return p.fail(StatusInitializeFailure, deviceError("create input audio context", err))
	}
	p.output, err = p.deps.Devices.NewOutputContext(p.cfg.OutputSampleRate)
	if err != nil {
		return p.fail(StatusInitializeFailure, deviceError("create output audio context", err))
	}

	p.transition(StateConnecting, StatusConnecting)

	deadline := time.Now().Add(p.cfg.ConnectTimeout)
	dialCtx, dialCancel := context.WithDeadline(ctx, deadline)
	session, err := p.deps.Dialer.Dial(dialCtx, p.cfg.Session)
	dialCancel()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return p.closed()
		case errors.Is(err, context.DeadlineExceeded):
			return p.fail(StatusConnectTimeout, core.NewTransportError("connect timed out", err))
		case core.IsType(err, core.ErrConfigMissing):
			return p.fail(StatusInitializeFailure, err)
		default:
			return p.fail(StatusConnectionError, transportError("connect", err))
		}
	}
	p.session = session

	events := make(chan ServerEvent)
	recvErr := make(chan error, 1)
	sendErr := make(chan error, 1)
	decodeIn := make(chan []byte)
	decoded := make(chan decodeResult)

	p.wg.Add(3)
	go p.receiveLoop(ctx, session, events, recvErr)
	go p.sendLoop(ctx, session, sendErr)
	go p.decodeLoop(ctx, decodeIn, decoded)

	return p.loop(ctx, deadline, events, recvErr, sendErr, decodeIn, decoded)
}

func (p *Pipeline) loop(
	ctx context.Context,
	deadline time.Time,
	events <-chan ServerEvent,
	recvErr, sendErr <-chan error,
	decodeIn chan<- []byte,
	decoded <-chan decodeResult,
) error {
	connectTimer := time.NewTimer(time.Until(deadline))
	defer connectTimer.Stop()
	timeout := connectTimer.C

	// Inbound audio waiting for the decoder, in arrival order.
	var pending [][]byte

	for {
		var in chan<- []byte
		var next []byte
		if len(pending) > 0 {
			in = decodeIn
			next = pending[0]
		}

		select {
		case <-ctx.Done():
			return p.closed()

		case <-timeout:
			return p.fail(StatusConnectTimeout, core.NewTransportError("no setup acknowledgement before connect timeout", context.DeadlineExceeded))

		case err := <-recvErr:
			if errors.Is(err, io.EOF) {
				return p.closed()
			}
			return p.fail(StatusConnectionError, transportError("receive", err))

		case err := <-sendErr:
			return p.fail(StatusConnectionError, transportError("send realtime input", err))

		case ev := <-events:
			if ev.SetupComplete && p.State() == StateConnecting {
				connectTimer.Stop()
				timeout = nil
				if err := p.open(); err != nil {
					return err
				}
			}
			if f := ev.InputTranscription; f != nil {
				p.applyTranscription(SpeakerUser, f)
			}
			if f := ev.OutputTranscription; f != nil {
				p.applyTranscription(SpeakerModel, f)
			}
			if len(ev.Audio) > 0 && p.State() == StateOpen {
				pending = append(pending, ev.Audio)
			}

		case in <- next:
			pending[0] = nil
			pending = pending[1:]

		case res := <-decoded:
			p.play(res)

		case id := <-p.ended:
			delete(p.sources, id)
		}
	}
}

func (p *Pipeline) open() error {
	p.transition(StateOpen, StatusConnected)
	node, err := p.input.Capture(p.stream, p.cfg.WindowSamples, p.onCapture)
	if err != nil {
		return p.fail(StatusInitializeFailure, deviceError("start capture", err))
	}
	p.capture = node
	return nil
}

// onCapture runs on the device goroutine.
func (p *Pipeline) onCapture(samples []float32) {
	if p.State() != StateOpen {
		return
	}
	unit := RealtimeInput{Data: audio.Float32ToPCM16(samples), MIMEType: p.mimeType}
	select {
	case p.outbound <- unit:
	default:
		p.unitsDropped.Add(1)
	}
}

func (p *Pipeline) applyTranscription(speaker Speaker, f *Fragment) {
	p.mu.Lock()
	idx, entry := p.transcript.Apply(speaker, f.Text, f.Final)
	p.mu.Unlock()
	if p.deps.Hooks.Transcript != nil {
		p.deps.Hooks.Transcript(idx, entry)
	}
}

func (p *Pipeline) play(res decodeResult) {
	if res.err != nil {
		p.decodeFailures.Add(1)
		p.logger.Warn("dropping undecodable audio chunk", "error", res.err)
		return
	}
	if p.State() != StateOpen || p.output == nil || len(res.samples) == 0 {
		return
	}

	d := p.format.Duration(len(res.samples))
	start := p.timeline.Schedule(p.output.Now(), d)

	id := p.nextSource
	p.nextSource++
	src, err := p.output.Play(start, res.samples, func() {
		select {
		case p.ended <- id:
		case <-p.loopDone:
		}
	})
	if err != nil {
		p.logger.Warn("schedule playback failed", "error", err)
		return
	}
	p.sources[id] = src
	p.chunksPlayed.Add(1)
}

func (p *Pipeline) receiveLoop(ctx context.Context, s Session, events chan<- ServerEvent, errs chan<- error) {
	defer p.wg.Done()
	badInRow := 0
	for {
		ev, err := s.Receive()
		if core.IsType(err, core.ErrDecode) && badInRow < maxDecodeFailuresInRow {
			badInRow++
			p.decodeFailures.Add(1)
			p.logger.Warn("dropping undecodable server message", "error", err)
			continue
		}
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		badInRow = 0
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) sendLoop(ctx context.Context, s Session, errs chan<- error) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case unit := <-p.outbound:
			if err := s.SendRealtimeInput(unit); err != nil {
				select {
				case errs <- err:
				default:
				}
				return
			}
			p.unitsSent.Add(1)
		}
	}
}

func (p *Pipeline) decodeLoop(ctx context.Context, in <-chan []byte, out chan<- decodeResult) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-in:
			samples, err := audio.PCM16ToFloat32(raw)
			select {
			case out <- decodeResult{samples: samples, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// teardown releases every acquired resource. Each handle is cleared after it
// is released so repeated calls are no-ops.
func (p *Pipeline) teardown() {
	if p.session != nil {
		if err := p.session.Close(); err != nil {
			p.logger.Debug("close live session", "error", err)
		}
		p.session = nil
	}
	if p.capture != nil {
		p.capture.Disconnect()
		p.capture = nil
	}
	if p.stream != nil {
		p.stream.Stop()
		p.stream = nil
	}
	if p.input != nil {
		if !p.inputClosed {
			if err := p.input.Close(); err != nil {
				p.logger.Debug("close input audio context", "error", err)
			}
			p.inputClosed = true
		}
		p.input = nil
	}
	if p.output != nil {
		if !p.outputClosed {
			if err := p.output.Close(); err != nil {
				p.logger.Debug("close output audio context", "error", err)
			}
			p.outputClosed = true
		}
		p.output = nil
	}
	for id, src := range p.sources {
		src.Stop()
		delete(p.sources, id)
	}
}

func (p *Pipeline) transition(to State, status string) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	p.state.Store(int32(to))
	p.logger.Debug("live state", "state", to.String(), "status", status)
	if p.deps.Hooks.Status != nil {
		p.deps.Hooks.Status(to, status)
	}
}

func (p *Pipeline) closed() error {
	p.transition(StateClosed, StatusConnectionClosed)
	return nil
}

func (p *Pipeline) fail(status string, err error) error {
	p.logger.Error("live pipeline failed", "status", status, "error", err)
	p.transition(StateError, status)
	return err
}

func permissionDenied(err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	return core.NewPermissionDeniedError("microphone access was not granted", err)
}

func transportError(op string, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) && ce.Type == core.ErrTransport {
		return err
	}
	return core.NewTransportError(op+" failed: "+err.Error(), err)
}

func deviceError(op string, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	return &core.Error{Type: core.ErrAPI, Message: op + " failed", Err: err}
}
