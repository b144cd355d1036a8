package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vango-go/portfolio/internal/dotenv"
	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/content"
	"github.com/vango-go/portfolio/pkg/site/config"
	"github.com/vango-go/portfolio/pkg/site/server"
)

type siteDeps struct {
	loadConfig   func() (config.Config, error)
	loadContent  func(path string) (content.Resume, error)
	openCache    func(ctx context.Context, cfg art.CacheConfig) (art.Cache, error)
	newServer    func(config.Config, *slog.Logger, server.Options) (*server.Server, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultSiteDeps() siteDeps {
	return siteDeps{
		loadConfig:  config.LoadFromEnv,
		loadContent: content.Load,
		openCache:   art.Open,
		newServer:   server.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

type flags struct {
	addr      string
	content   string
	resumeDir string
	envFiles  []string
	logLevel  string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("portfolio", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.addr, "addr", "", "listen address (overrides PORTFOLIO_ADDR)")
	fs.StringVar(&f.content, "content", "", "resume YAML file (overrides PORTFOLIO_CONTENT_FILE)")
	fs.StringVar(&f.resumeDir, "resume-dir", "", "directory holding the downloadable resume (overrides PORTFOLIO_RESUME_DIR)")
	fs.StringSliceVar(&f.envFiles, "env-file", []string{".env", ".env.local"}, "dotenv files to load; existing variables win")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

func (f flags) apply(cfg config.Config) config.Config {
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.content != "" {
		cfg.ContentFile = f.content
	}
	if f.resumeDir != "" {
		cfg.ResumeDir = f.resumeDir
	}
	return cfg
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid --log-level %q", s)
	}
	return level, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runSite(ctx context.Context, logger *slog.Logger, f flags, deps siteDeps) error {
	if deps.loadConfig == nil || deps.loadContent == nil || deps.openCache == nil {
		return errors.New("missing loader dependency")
	}
	if deps.newServer == nil {
		return errors.New("missing newServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = f.apply(cfg)

	resume, err := deps.loadContent(cfg.ContentFile)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	cache, err := deps.openCache(ctx, art.CacheConfig{
		Type:       cfg.ArtCacheType,
		URL:        cfg.ArtCacheURL,
		TTL:        cfg.ArtCacheTTL,
		MaxEntries: cfg.ArtCacheMaxEntries,
	})
	if err != nil {
		return fmt.Errorf("open art cache: %w", err)
	}
	defer cache.Close()

	site, err := deps.newServer(cfg, logger, server.Options{
		Resume:   resume,
		ArtCache: cache,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	httpSrv := buildHTTPServer(cfg, site.Handler())

	logger.Info("starting portfolio",
		"addr", cfg.Addr,
		"name", resume.Name,
		"art_cache", cfg.ArtCacheType,
		"gemini_configured", cfg.GeminiAPIKey != "",
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	site.SetDraining()
	if n := site.WarnLiveSessionsDraining(); n > 0 {
		logger.Info("warned live sessions", "count", n)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !site.WaitLiveSessions(waitCtx) {
		logger.Warn("live sessions still running after grace period; cancelling", "count", site.CancelLiveSessions())
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("portfolio stopped")
	return nil
}

func runMain(ctx context.Context, args []string, stderr io.Writer, deps siteDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	level, err := parseLevel(f.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "portfolio: %v\n", err)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := dotenv.LoadFiles(f.envFiles...); err != nil {
		fmt.Fprintf(stderr, "portfolio: %v\n", err)
		return 1
	}

	if err := runSite(ctx, logger, f, deps); err != nil {
		fmt.Fprintf(stderr, "portfolio: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stderr, defaultSiteDeps()))
}
