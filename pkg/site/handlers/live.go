package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/audio"
	"github.com/vango-go/portfolio/pkg/core/live"
	"github.com/vango-go/portfolio/pkg/site/config"
	"github.com/vango-go/portfolio/pkg/site/lifecycle"
	"github.com/vango-go/portfolio/pkg/site/live/bridge"
	"github.com/vango-go/portfolio/pkg/site/live/protocol"
	"github.com/vango-go/portfolio/pkg/site/live/sessions"
	"github.com/vango-go/portfolio/pkg/site/metrics"
	"github.com/vango-go/portfolio/pkg/site/ratelimit"
)

// LiveHandler handles /v1/live websocket sessions. Each connection runs one
// live.Pipeline with the browser acting as microphone and speaker.
type LiveHandler struct {
	Config            config.Config
	Dialer            live.Dialer
	SystemInstruction string
	Logger            *slog.Logger
	Limiter           *ratelimit.Limiter
	Lifecycle         *lifecycle.Lifecycle
	LiveSessions      *sessions.Tracker
	Metrics           *metrics.Metrics
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	reqID := requestIDFromContext(r.Context())
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: "draining"}, 529)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermissionDenied, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxFrameBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxFrameBytes)
	}
	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello", true, nil)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be hello", true, nil)
		return
	}
	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		code, details := decodeErrorCode(err)
		h.writeWSError(conn, code, err.Error(), true, details)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be hello", true, nil)
		return
	}

	clientKey := ratelimit.ClientKey(r, h.Config.TrustProxyHeaders)
	if h.Config.LiveMaxSessionsPerClient > 0 {
		dec := h.Limiter.AcquireSession(clientKey, time.Now())
		if !dec.Allowed {
			h.Metrics.RecordLiveSessionRejected("client_limit")
			h.Metrics.RecordRateLimitHit("live")
			h.writeWSError(conn, "rate_limited", "too many concurrent live sessions", true, map[string]any{"retry_after": dec.RetryAfter})
			return
		}
		defer dec.Permit.Release()
	}

	sessionID := "s_" + randHex(8)
	maxDuration := h.Config.LiveMaxSessionDuration
	if maxDuration <= 0 {
		maxDuration = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(r.Context(), maxDuration)
	defer cancel()

	// The bridge outlives the pipeline context so the final error frame can
	// still be flushed after a timeout or drain.
	b := bridge.New(r.Context(), bridge.Config{
		PingInterval:      h.Config.LiveWSPingInterval,
		WriteTimeout:      h.Config.LiveWSWriteTimeout,
		QueueSize:         h.Config.LiveOutboundQueueSize,
		MicrophoneTimeout: h.Config.LiveMicrophoneTimeout,
	}, logger.With("session_id", sessionID))
	defer b.Close()

	started := time.Now()
	unregister, ok := h.LiveSessions.TryRegister(sessionID, sessions.Handle{
		Client:  clientKey,
		Started: started,
		Cancel:  cancel,
		Warn:    b.SendWarning,
	}, h.Config.LiveMaxSessions)
	if !ok {
		h.Metrics.RecordLiveSessionRejected("capacity")
		h.writeWSError(conn, "overloaded", "too many live sessions", true, nil)
		return
	}
	defer unregister()

	windowSamples := h.Config.LiveWindowSamples
	if windowSamples <= 0 {
		windowSamples = live.DefaultWindowSamples
	}
	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		AudioIn:         protocol.InputFormat(),
		AudioOut:        protocol.OutputFormat(),
		WindowSamples:   windowSamples,
		Limits: protocol.HelloAckLimits{
			MaxFrameBytes:  int(h.Config.LiveMaxFrameBytes),
			MaxSessionMS:   maxDuration.Milliseconds(),
			MicrophoneWait: h.Config.LiveMicrophoneTimeout.Milliseconds(),
		},
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	logger.Info("live session started",
		"request_id", reqID,
		"session_id", sessionID,
		"hello", hello.RedactedForLog(),
	)

	// From here on every write goes through the bridge.
	writerDone := make(chan error, 1)
	go func() { writerDone <- b.Run(conn) }()

	sessionCfg := live.DefaultSessionConfig(h.SystemInstruction)
	if m := strings.TrimSpace(h.Config.LiveModel); m != "" {
		sessionCfg.Model = m
	}
	if v := strings.TrimSpace(h.Config.LiveVoice); v != "" {
		sessionCfg.Voice = v
	}
	p, err := live.New(live.Config{
		Session:        sessionCfg,
		WindowSamples:  windowSamples,
		ConnectTimeout: h.Config.LiveConnectTimeout,
	}, live.Dependencies{
		Devices: b,
		Dialer:  h.Dialer,
		Logger:  logger.With("session_id", sessionID),
		Hooks: live.Hooks{
			Status:     b.SendStatus,
			Transcript: b.SendTranscript,
		},
	})
	if err != nil {
		b.SendError("internal", "failed to start session", true)
		b.Close()
		<-writerDone
		return
	}

	h.Metrics.RecordLiveSessionStart()

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()
	readDone := make(chan error, 1)
	go func() { readDone <- h.readLoop(conn, b) }()

	var runErr error
	select {
	case runErr = <-runDone:
	case <-readDone:
		p.Close()
		runErr = <-runDone
	case <-writerDone:
		writerDone <- nil
		p.Close()
		runErr = <-runDone
	}

	outcome := "closed"
	switch {
	case runErr != nil:
		outcome = "error"
		code, msg := liveErrorCode(runErr)
		b.SendError(code, msg, true)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
		b.SendError("session_timeout", "maximum session duration reached", true)
	}

	b.Close()
	<-writerDone

	duration := time.Since(started)
	stats := p.Stats()
	h.Metrics.RecordLiveSessionEnd(outcome, duration, stats)
	logger.Info("live session ended",
		"request_id", reqID,
		"session_id", sessionID,
		"outcome", outcome,
		"duration_ms", duration.Milliseconds(),
		"units_sent", stats.UnitsSent,
		"units_dropped", stats.UnitsDropped,
		"chunks_played", stats.ChunksPlayed,
		"frames_dropped", b.Dropped(),
		"error", runErr,
	)
}

// readLoop feeds browser frames into the bridge until the socket closes or the
// client ends the session.
func (h LiveHandler) readLoop(conn *websocket.Conn, b *bridge.Bridge) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch messageType {
		case websocket.BinaryMessage:
			samples, err := audio.ParseFloat32LE(data)
			if err != nil {
				b.SendError("bad_request", "binary frames must be float32 samples", false)
				continue
			}
			b.PushSamples(samples)
		case websocket.TextMessage:
			decoded, err := protocol.DecodeClientMessage(data)
			if err != nil {
				code, _ := decodeErrorCode(err)
				b.SendError(code, err.Error(), false)
				continue
			}
			switch msg := decoded.(type) {
			case protocol.ClientMicrophone:
				b.GrantMicrophone(msg.Granted, msg.Reason)
			case protocol.ClientControl:
				if msg.Op == protocol.ControlEndSession {
					return nil
				}
			case protocol.ClientHello:
				b.SendError("bad_request", "hello already received", false)
			}
		}
	}
}

// originAllowed accepts same-origin upgrades, requests without an Origin and
// allowlisted cross-origin pages.
func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, code, message string, close bool, details map[string]any) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: close, Details: details})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func decodeErrorCode(err error) (string, map[string]any) {
	var de *protocol.DecodeError
	if !errors.As(err, &de) {
		return "bad_request", nil
	}
	var details map[string]any
	if de.Param != "" {
		details = map[string]any{"param": de.Param}
	}
	if de.Code == "unsupported" && de.Param == "protocol_version" {
		return "unsupported_version", details
	}
	return de.Code, details
}

// liveErrorCode maps a pipeline failure onto an error frame.
func liveErrorCode(err error) (string, string) {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return "internal", "live session failed"
	}
	switch ce.Type {
	case core.ErrPermissionDenied:
		return "permission_denied", ce.Message
	case core.ErrConfigMissing:
		return "config_missing", ce.Message
	case core.ErrTransport:
		return "transport", ce.Message
	default:
		return "internal", ce.Message
	}
}
