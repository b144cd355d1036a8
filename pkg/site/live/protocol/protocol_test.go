package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"client":{"name":"portfolio-web","version":"1"},
		"audio_in":{"encoding":"f32le","sample_rate_hz":16000,"channels":1}
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.ProtocolVersion != "1" || hello.Client.Name != "portfolio-web" {
		t.Fatalf("hello=%+v", hello)
	}
}

func TestDecodeClientMessage_HelloWithoutAudioIn(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"hello","protocol_version":"1"}`)); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeClientMessage_HelloRejections(t *testing.T) {
	cases := []struct {
		raw   string
		code  string
		param string
	}{
		{`{"type":"hello"}`, "bad_request", "protocol_version"},
		{`{"type":"hello","protocol_version":"2"}`, "unsupported", "protocol_version"},
		{`{"type":"hello","protocol_version":"1","audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1}}`, "unsupported", "audio_in.encoding"},
		{`{"type":"hello","protocol_version":"1","audio_in":{"encoding":"f32le","sample_rate_hz":48000,"channels":1}}`, "unsupported", "audio_in.sample_rate_hz"},
		{`{"type":"hello","protocol_version":"1","audio_in":{"encoding":"f32le","sample_rate_hz":16000,"channels":2}}`, "unsupported", "audio_in.channels"},
	}
	for _, tc := range cases {
		_, err := DecodeClientMessage([]byte(tc.raw))
		decErr, ok := err.(*DecodeError)
		if !ok {
			t.Fatalf("%s: err type = %T", tc.raw, err)
		}
		if decErr.Code != tc.code || decErr.Param != tc.param {
			t.Fatalf("%s: code=%q param=%q", tc.raw, decErr.Code, decErr.Param)
		}
	}
}

func TestDecodeClientMessage_Microphone(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"microphone","granted":false,"reason":"NotAllowedError"}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	mic := msg.(ClientMicrophone)
	if mic.Granted || mic.Reason != "NotAllowedError" {
		t.Fatalf("mic=%+v", mic)
	}
}

func TestDecodeClientMessage_Control(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"control","op":" end_session "}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if ctl := msg.(ClientControl); ctl.Op != ControlEndSession {
		t.Fatalf("op=%q", ctl.Op)
	}

	_, err = DecodeClientMessage([]byte(`{"type":"control","op":"interrupt"}`))
	if decErr, ok := err.(*DecodeError); !ok || decErr.Code != "unsupported" {
		t.Fatalf("err=%v", err)
	}
	_, err = DecodeClientMessage([]byte(`{"type":"control"}`))
	if decErr, ok := err.(*DecodeError); !ok || decErr.Param != "op" {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeClientMessage_InvalidEnvelope(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"type":"audio_frame"}`} {
		if _, err := DecodeClientMessage([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", raw)
		}
	}
}

func TestServerAudio_WireShape(t *testing.T) {
	b, err := json.Marshal(ServerAudio{Type: "audio", SourceID: 3, StartMS: 120.5, DurationMS: 40, NowMS: 100, AudioB64: "AAA="})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"source_id":3`, `"start_ms":120.5`, `"duration_ms":40`, `"now_ms":100`, `"audio_b64":"AAA="`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
}

func TestFormats(t *testing.T) {
	if in := InputFormat(); in.Encoding != EncodingF32LE || in.SampleRateHz != 16000 {
		t.Fatalf("in=%+v", in)
	}
	if out := OutputFormat(); out.Encoding != EncodingPCMS16LE || out.SampleRateHz != 24000 {
		t.Fatalf("out=%+v", out)
	}
}
