package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/content"
	"github.com/vango-go/portfolio/pkg/core/gemini"
	"github.com/vango-go/portfolio/pkg/core/live"
	"github.com/vango-go/portfolio/pkg/site/config"
	"github.com/vango-go/portfolio/pkg/site/handlers"
	"github.com/vango-go/portfolio/pkg/site/lifecycle"
	"github.com/vango-go/portfolio/pkg/site/live/sessions"
	"github.com/vango-go/portfolio/pkg/site/metrics"
	"github.com/vango-go/portfolio/pkg/site/mw"
	"github.com/vango-go/portfolio/pkg/site/ratelimit"
	"github.com/vango-go/portfolio/pkg/site/web"
)

// LivePath is the WebSocket route of the live conversation.
const LivePath = "/v1/live"

// Options are the collaborators New does not build from config. Nil fields
// are built from config: Dialer and Images share one Gemini client.
type Options struct {
	Resume content.Resume

	Dialer   live.Dialer
	Images   art.Generator
	ArtCache art.Cache
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	resume            content.Resume
	systemInstruction string
	dialer            live.Dialer
	art               *art.Service
	renderer          *web.Renderer
	limiter           *ratelimit.Limiter
	lifecycle         *lifecycle.Lifecycle
	liveSessions      *sessions.Tracker
	metrics           *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	instruction, err := content.SystemInstruction(opts.Resume)
	if err != nil {
		return nil, fmt.Errorf("build system instruction: %w", err)
	}
	renderer, err := web.NewRenderer(opts.Resume, LivePath)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New("")
	}

	dialer, images := opts.Dialer, opts.Images
	imageModel := cfg.ImageModel
	if dialer == nil || images == nil {
		gc := gemini.New(gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			ImageModel: cfg.ImageModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: &http.Client{
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
					DialContext: (&net.Dialer{
						Timeout: 10 * time.Second,
					}).DialContext,
					ForceAttemptHTTP2:     true,
					MaxIdleConns:          100,
					IdleConnTimeout:       90 * time.Second,
					TLSHandshakeTimeout:   10 * time.Second,
					ExpectContinueTimeout: 1 * time.Second,
				},
			},
		})
		if !gc.Configured() {
			logger.Warn("GEMINI_API_KEY is not set; live chat and project art will report config_missing")
		}
		if dialer == nil {
			dialer = gc
		}
		if images == nil {
			images = gc
			imageModel = gc.ImageModel()
		}
	}

	s := &Server{
		cfg:               cfg,
		logger:            logger,
		mux:               http.NewServeMux(),
		resume:            opts.Resume,
		systemInstruction: instruction,
		dialer:            dialer,
		art: art.NewService(images, art.Options{
			Model:       imageModel,
			Cache:       opts.ArtCache,
			Logger:      logger.With("component", "art"),
			Concurrency: cfg.ArtConcurrency,
			Observe:     m.RecordArt,
		}),
		renderer: renderer,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentSessions: cfg.LiveMaxSessionsPerClient,
		}),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
		metrics:      m,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/", s.bounded(gzhttp.GzipHandler(handlers.PagesHandler{Renderer: s.renderer, Logger: s.logger})))
	s.mux.Handle("/static/", s.bounded(gzhttp.GzipHandler(web.Static())))

	s.mux.Handle("/resume", s.bounded(handlers.ResumeHandler{Dir: s.cfg.ResumeDir, File: s.resume.ResumeFile}))
	s.mux.Handle("/api/content", s.bounded(gzhttp.GzipHandler(handlers.ContentHandler{Resume: s.resume})))
	s.mux.Handle("/api/projects/art", mw.RateLimit(s.cfg, s.limiter, handlers.ArtHandler{
		Generator: s.art,
		Projects:  s.resume.Projects,
		Timeout:   s.cfg.ArtTimeout,
		Logger:    s.logger,
	}, func() { s.metrics.RecordRateLimitHit("art") }))

	s.mux.Handle(LivePath, handlers.LiveHandler{
		Config:            s.cfg,
		Dialer:            s.dialer,
		SystemInstruction: s.systemInstruction,
		Logger:            s.logger,
		Limiter:           s.limiter,
		Lifecycle:         s.lifecycle,
		LiveSessions:      s.liveSessions,
		Metrics:           s.metrics,
	})

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle, LiveSessions: s.liveSessions})
	s.mux.Handle("/metrics", s.metrics.Handler())
}

// bounded caps plain request/response handlers at HandlerTimeout. The live
// route and art generation carry their own limits.
func (s *Server) bounded(h http.Handler) http.Handler {
	if s.cfg.HandlerTimeout <= 0 {
		return h
	}
	return http.TimeoutHandler(h, s.cfg.HandlerTimeout, "request timed out")
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h, s.metrics.ObserveRequest)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes readiness fail and refuses new live sessions.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) WarnLiveSessionsDraining() int {
	return s.liveSessions.WarnAll("draining", "server is shutting down; the conversation will end soon")
}

// WaitLiveSessions blocks until every live session has ended or ctx is done.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

// LiveSessions lists running conversations, oldest first.
func (s *Server) LiveSessions() []sessions.Info {
	return s.liveSessions.List()
}
