package gemini

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/live"
)

// Dial opens a live session. The SDK's websocket dial does not observe ctx, so
// a dial that completes after ctx is done is closed immediately.
func (c *Client) Dial(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	gc, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	type result struct {
		s   *genai.Session
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := gc.Live.Connect(ctx, cfg.Model, LiveConnectConfig(cfg))
		ch <- result{s: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, core.NewTransportError("connect live session: "+r.err.Error(), r.err)
		}
		return &session{s: r.s}, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				_ = r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// LiveConnectConfig maps the pipeline's session configuration onto the SDK's.
func LiveConnectConfig(cfg live.SessionConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{}
	if cfg.ResponseModality != "" {
		out.ResponseModalities = []genai.Modality{genai.Modality(cfg.ResponseModality)}
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.WebSearch {
		out.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return out
}

type session struct {
	s *genai.Session

	closeOnce sync.Once
	closeErr  error
}

func (s *session) SendRealtimeInput(in live.RealtimeInput) error {
	return s.s.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: in.Data, MIMEType: in.MIMEType},
	})
}

func (s *session) Receive() (live.ServerEvent, error) {
	msg, err := s.s.Receive()
	if err != nil {
		return live.ServerEvent{}, receiveError(err)
	}
	return ServerEvent(msg), nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.s.Close() })
	return s.closeErr
}

// receiveError maps a clean websocket close to io.EOF. The SDK parses each
// frame inside Receive, so an error that did not come from the connection is
// one unreadable message and becomes a decode_error.
func receiveError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if connectionError(err) {
		return err
	}
	return core.NewDecodeError("unreadable server message", err)
}

func connectionError(err error) bool {
	var closeErr *websocket.CloseError
	var netErr net.Error
	switch {
	case errors.As(err, &closeErr), errors.As(err, &netErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return true
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, websocket.ErrReadLimit):
		return true
	}
	return false
}

// ServerEvent flattens an SDK message into the pipeline's event shape. Inline
// audio from every part of the model turn is concatenated in order.
func ServerEvent(msg *genai.LiveServerMessage) live.ServerEvent {
	var ev live.ServerEvent
	if msg == nil {
		return ev
	}
	ev.SetupComplete = msg.SetupComplete != nil

	sc := msg.ServerContent
	if sc == nil {
		return ev
	}
	if t := sc.InputTranscription; t != nil {
		ev.InputTranscription = &live.Fragment{Text: t.Text, Final: t.Finished}
	}
	if t := sc.OutputTranscription; t != nil {
		ev.OutputTranscription = &live.Fragment{Text: t.Text, Final: t.Finished}
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if mt := part.InlineData.MIMEType; mt != "" && !strings.HasPrefix(mt, "audio/") {
				continue
			}
			ev.Audio = append(ev.Audio, part.InlineData.Data...)
		}
	}
	ev.TurnComplete = sc.TurnComplete
	return ev
}
