package audiodev

import (
	"testing"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/audio"
)

func TestMicStream_DropsFramesUntilCaptureAttaches(t *testing.T) {
	mic := &micStream{}
	mic.deliver(audio.Float32LE(ones(8, 1)))

	in := &inputContext{}
	var windows [][]float32
	node, err := in.Capture(mic, 4, func(w []float32) { windows = append(windows, w) })
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	mic.deliver(audio.Float32LE(ones(6, 0.5)))
	if len(windows) != 1 || windows[0][0] != 0.5 {
		t.Fatalf("windows=%v", windows)
	}

	node.Disconnect()
	mic.deliver(audio.Float32LE(ones(8, 0.5)))
	if len(windows) != 1 {
		t.Fatalf("windows after disconnect=%d", len(windows))
	}
}

func TestMicStream_LaterCaptureReplacesSink(t *testing.T) {
	mic := &micStream{}
	in := &inputContext{}
	var first, second int
	old, _ := in.Capture(mic, 2, func([]float32) { first++ })
	if _, err := in.Capture(mic, 2, func([]float32) { second++ }); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	old.Disconnect()
	mic.deliver(audio.Float32LE(ones(4, 1)))
	if first != 0 || second != 2 {
		t.Fatalf("first=%d second=%d", first, second)
	}
}

func TestMicStream_StoppedRejectsCapture(t *testing.T) {
	mic := &micStream{}
	mic.Stop()
	mic.Stop()
	in := &inputContext{}
	if _, err := in.Capture(mic, 4, func([]float32) {}); err == nil {
		t.Fatalf("expected error after Stop")
	}
}

func TestNewInputContext_RejectsOtherRates(t *testing.T) {
	d := New(nil)
	_, err := d.NewInputContext(48000)
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("err=%v", err)
	}
	if _, err := d.NewInputContext(audio.InputSampleRate); err != nil {
		t.Fatalf("NewInputContext: %v", err)
	}
}
