// Package protocol defines the JSON frames exchanged with the browser over
// the /live WebSocket. Microphone audio travels as binary frames of
// little-endian float32 samples and is not described here.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/portfolio/pkg/core/audio"
)

const (
	ProtocolVersion1 = "1"

	EncodingF32LE    = "f32le"
	EncodingPCMS16LE = "pcm_s16le"

	ControlEndSession = "end_session"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes one direction of live audio.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type ClientHello struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Client          HelloClient  `json:"client,omitempty"`
	AudioIn         *AudioFormat `json:"audio_in,omitempty"`
}

func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"client_name":      h.Client.Name,
		"client_version":   h.Client.Version,
		"client_platform":  h.Client.Platform,
	}
}

// ClientMicrophone reports the outcome of the browser's microphone prompt.
type ClientMicrophone struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "microphone":
		var msg ClientMicrophone
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid microphone frame", "")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		if op != ControlEndSession {
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateHello checks the protocol version and, when present, that the
// client's capture format is the one the server accepts.
func ValidateHello(msg ClientHello) error {
	version := strings.TrimSpace(msg.ProtocolVersion)
	if version == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if version != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if in := msg.AudioIn; in != nil {
		want := InputFormat()
		if strings.TrimSpace(in.Encoding) != want.Encoding {
			return unsupported("hello.audio_in.encoding must be "+want.Encoding, "audio_in.encoding")
		}
		if in.SampleRateHz != want.SampleRateHz {
			return unsupported(fmt.Sprintf("hello.audio_in.sample_rate_hz must be %d", want.SampleRateHz), "audio_in.sample_rate_hz")
		}
		if in.Channels != want.Channels {
			return unsupported("hello.audio_in.channels must be 1", "audio_in.channels")
		}
	}
	return nil
}

type HelloAckLimits struct {
	MaxFrameBytes  int   `json:"max_frame_bytes"`
	MaxSessionMS   int64 `json:"max_session_ms"`
	MicrophoneWait int64 `json:"microphone_wait_ms"`
}

type ServerHelloAck struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	AudioIn         AudioFormat    `json:"audio_in"`
	AudioOut        AudioFormat    `json:"audio_out"`
	WindowSamples   int            `json:"window_samples"`
	Limits          HelloAckLimits `json:"limits"`
}

// ServerMicrophoneRequest asks the browser to prompt for microphone access and
// answer with a ClientMicrophone frame within TimeoutMS.
type ServerMicrophoneRequest struct {
	Type      string `json:"type"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// ServerStatus mirrors a pipeline state transition.
type ServerStatus struct {
	Type    string `json:"type"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// ServerTranscript carries the current value of one transcript entry. A later
// frame with the same index replaces the earlier one.
type ServerTranscript struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ServerAudio is one scheduled output chunk. StartMS is on the server's
// output clock; NowMS is that clock when the frame was queued, so the client
// can map it onto its own audio clock.
type ServerAudio struct {
	Type       string  `json:"type"`
	SourceID   uint64  `json:"source_id"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
	NowMS      float64 `json:"now_ms"`
	AudioB64   string  `json:"audio_b64"`
}

// ServerAudioStop cancels one scheduled chunk.
type ServerAudioStop struct {
	Type     string `json:"type"`
	SourceID uint64 `json:"source_id"`
}

type ServerError struct {
	Type      string         `json:"type"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InputFormat is the microphone format the server expects.
func InputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingF32LE, SampleRateHz: audio.InputSampleRate, Channels: 1}
}

// OutputFormat is the format of ServerAudio payloads.
func OutputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingPCMS16LE, SampleRateHz: audio.OutputSampleRate, Channels: 1}
}
