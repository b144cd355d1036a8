package live

import (
	"context"

	"github.com/vango-go/portfolio/pkg/core/audio"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Zephyr"

	ModalityAudio = "AUDIO"
)

// SessionConfig is sent when a remote session is opened.
type SessionConfig struct {
	Model               string
	ResponseModality    string
	Voice               string
	SystemInstruction   string
	InputTranscription  bool
	OutputTranscription bool
	WebSearch           bool
}

// DefaultSessionConfig returns the fixed conversation configuration: audio
// responses in the default voice, transcription both ways and web search.
func DefaultSessionConfig(systemInstruction string) SessionConfig {
	return SessionConfig{
		Model:               DefaultModel,
		ResponseModality:    ModalityAudio,
		Voice:               DefaultVoice,
		SystemInstruction:   systemInstruction,
		InputTranscription:  true,
		OutputTranscription: true,
		WebSearch:           true,
	}
}

// RealtimeInput is one outbound audio unit. Data is raw PCM16 LE; transports
// that carry text use Base64.
type RealtimeInput struct {
	Data     []byte
	MIMEType string
}

// Base64 returns Data in its wire encoding.
func (in RealtimeInput) Base64() string {
	return audio.EncodeBase64(in.Data)
}

// Fragment is a piece of streamed transcription.
type Fragment struct {
	Text  string
	Final bool
}

// ServerEvent is one inbound message from the remote session. Any subset of
// the fields may be set.
type ServerEvent struct {
	SetupComplete       bool
	InputTranscription  *Fragment
	OutputTranscription *Fragment
	// Audio is raw PCM16 LE mono at the output rate.
	Audio        []byte
	TurnComplete bool
}

// Dialer opens remote sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is an open bidirectional conversation with the remote endpoint.
type Session interface {
	SendRealtimeInput(in RealtimeInput) error
	// Receive blocks for the next event. It returns io.EOF after a normal
	// remote close, a decode_error for a single unreadable message and any
	// other error after a transport failure.
	Receive() (ServerEvent, error)
	Close() error
}
