// portfolio-talk holds a live voice conversation with the portfolio assistant
// from a terminal, using the local microphone and speakers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vango-go/portfolio/internal/audiodev"
	"github.com/vango-go/portfolio/internal/dotenv"
	"github.com/vango-go/portfolio/pkg/core/content"
	"github.com/vango-go/portfolio/pkg/core/gemini"
	"github.com/vango-go/portfolio/pkg/core/live"
)

type options struct {
	content        string
	model          string
	voice          string
	connectTimeout time.Duration
	window         int
	logFile        string
	plain          bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("portfolio-talk", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.content, "content", "", "resume YAML file (default: built-in content)")
	fs.StringVar(&o.model, "model", live.DefaultModel, "live model")
	fs.StringVar(&o.voice, "voice", live.DefaultVoice, "prebuilt voice name")
	fs.DurationVar(&o.connectTimeout, "connect-timeout", live.DefaultConnectTimeout, "bound on connecting to the model")
	fs.IntVar(&o.window, "window", live.DefaultWindowSamples, "capture window in samples")
	fs.StringVar(&o.logFile, "log-file", "", "write JSON log records to this file")
	fs.BoolVar(&o.plain, "plain", false, "print the transcript as lines instead of the interactive view")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.window <= 0 {
		return options{}, fmt.Errorf("--window must be positive")
	}
	return o, nil
}

func openLogger(path string) (*slog.Logger, func(), error) {
	if strings.TrimSpace(path) == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), func() { _ = f.Close() }, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, interactive bool) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
		return 2
	}

	if err := dotenv.LoadFiles(".env", ".env.local"); err != nil {
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
		return 1
	}
	logger, closeLog, err := openLogger(o.logFile)
	if err != nil {
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
		return 1
	}
	defer closeLog()

	resume, err := content.Load(o.content)
	if err != nil {
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
		return 1
	}
	instruction, err := content.SystemInstruction(resume)
	if err != nil {
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
		return 1
	}

	sessionCfg := live.DefaultSessionConfig(instruction)
	if m := strings.TrimSpace(o.model); m != "" {
		sessionCfg.Model = m
	}
	if v := strings.TrimSpace(o.voice); v != "" {
		sessionCfg.Voice = v
	}

	devices := audiodev.New(logger.With("component", "audio"))
	defer devices.Close()

	dialer := gemini.New(gemini.Config{
		APIKey:  gemini.APIKeyFromEnv(),
		BaseURL: os.Getenv("PORTFOLIO_GEMINI_BASE_URL"),
	})

	title := fmt.Sprintf("Talk with %s's assistant", resume.Name)
	var hooks live.Hooks
	var events chan tea.Msg
	stopped := make(chan struct{})
	if interactive && !o.plain {
		events = make(chan tea.Msg, 256)
		send := func(msg tea.Msg) {
			select {
			case events <- msg:
			case <-stopped:
			}
		}
		hooks = live.Hooks{
			Status:     func(s live.State, msg string) { send(statusMsg{state: s, message: msg}) },
			Transcript: func(i int, e live.Entry) { send(transcriptMsg{index: i, entry: e}) },
		}
	} else {
		printer := newPlainPrinter(stdout)
		hooks = live.Hooks{Status: printer.Status, Transcript: printer.Transcript}
		fmt.Fprintln(stdout, title)
	}

	p, err := live.New(live.Config{
		Session:        sessionCfg,
		WindowSamples:  o.window,
		ConnectTimeout: o.connectTimeout,
	}, live.Dependencies{
		Devices: devices,
		Dialer:  dialer,
		Logger:  logger,
		Hooks:   hooks,
	})
	if err != nil {
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
		return 1
	}

	var runErr error
	if events == nil {
		runErr = p.Run(ctx)
	} else {
		model := newTalkModel(title, events, func() error { return p.Run(ctx) }, p.Close)
		final, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(stdout)).Run()
		close(stopped)
		p.Close()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintf(stderr, "portfolio-talk: %v\n", err)
			return 1
		}
		if fm, ok := final.(talkModel); ok {
			runErr = fm.err
		}
	}

	stats := p.Stats()
	logger.Info("session ended",
		"state", p.State().String(),
		"units_sent", stats.UnitsSent,
		"units_dropped", stats.UnitsDropped,
		"chunks_played", stats.ChunksPlayed,
		"error", runErr,
	)
	if runErr != nil {
		fmt.Fprintf(stderr, "portfolio-talk: %v\n", runErr)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, interactive))
}
