package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vango-go/portfolio/pkg/core/live"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	o, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.model != live.DefaultModel || o.voice != live.DefaultVoice {
		t.Fatalf("model=%q voice=%q", o.model, o.voice)
	}
	if o.window != live.DefaultWindowSamples || o.connectTimeout != live.DefaultConnectTimeout {
		t.Fatalf("window=%d connect=%v", o.window, o.connectTimeout)
	}
	if o.plain {
		t.Fatalf("plain should default to false")
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	o, err := parseFlags([]string{"--voice", "Puck", "--window", "2048", "--connect-timeout", "3s", "--plain"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.voice != "Puck" || o.window != 2048 || o.connectTimeout != 3*time.Second || !o.plain {
		t.Fatalf("options=%+v", o)
	}
	if _, err := parseFlags([]string{"--window", "0"}, io.Discard); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestRun_BadFlagsExitCode(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	if code := run(t.Context(), []string{"--nope"}, io.Discard, &stderr, false); code != 2 {
		t.Fatalf("exit=%d, want 2", code)
	}
}

func TestPlainPrinter_PrintsFinalEntriesOnce(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newPlainPrinter(&out)

	p.Status(live.StateConnecting, live.StatusConnecting)
	p.Status(live.StateConnecting, live.StatusConnecting)
	p.Transcript(0, live.Entry{Speaker: live.SpeakerUser, Text: "Hel", Final: false})
	p.Transcript(0, live.Entry{Speaker: live.SpeakerUser, Text: "Hello", Final: true})
	p.Transcript(0, live.Entry{Speaker: live.SpeakerUser, Text: "Hello", Final: true})
	p.Transcript(1, live.Entry{Speaker: live.SpeakerModel, Text: "Hi there.", Final: true})

	want := "* " + live.StatusConnecting + "\nYou: Hello\nAssistant: Hi there.\n"
	if got := out.String(); got != want {
		t.Fatalf("output=%q, want %q", got, want)
	}
}

func newTestModel(closeFn func()) talkModel {
	events := make(chan tea.Msg, 8)
	return newTalkModel("Talk", events, func() error { return nil }, closeFn)
}

func TestTalkModel_TranscriptUpdates(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 10})
	m = next.(talkModel)

	next, cmd := m.Update(transcriptMsg{index: 0, entry: live.Entry{Speaker: live.SpeakerUser, Text: "Hi", Final: false}})
	m = next.(talkModel)
	if cmd == nil {
		t.Fatalf("expected follow-up wait command")
	}
	next, _ = m.Update(transcriptMsg{index: 0, entry: live.Entry{Speaker: live.SpeakerUser, Text: "Hi there", Final: true}})
	m = next.(talkModel)
	next, _ = m.Update(transcriptMsg{index: 1, entry: live.Entry{Speaker: live.SpeakerModel, Text: "Hello!", Final: false}})
	m = next.(talkModel)

	if len(m.entries) != 2 {
		t.Fatalf("entries=%d, want 2", len(m.entries))
	}
	if m.entries[0].Text != "Hi there" || !m.entries[0].Final {
		t.Fatalf("entry[0]=%+v", m.entries[0])
	}
	view := m.View()
	if !strings.Contains(view, "Hi there") || !strings.Contains(view, "Hello!") {
		t.Fatalf("view missing transcript:\n%s", view)
	}
}

func TestTalkModel_StatusAndDone(t *testing.T) {
	t.Parallel()

	m := newTestModel(nil)
	next, _ := m.Update(statusMsg{state: live.StateOpen, message: live.StatusConnected})
	m = next.(talkModel)
	if m.busy() {
		t.Fatalf("open state should not show spinner")
	}
	if !strings.Contains(m.View(), live.StatusConnected) {
		t.Fatalf("view missing status")
	}

	failure := errors.New("connection error")
	next, cmd := m.Update(doneMsg{err: failure})
	m = next.(talkModel)
	if !m.done || m.err != failure {
		t.Fatalf("done=%v err=%v", m.done, m.err)
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestTalkModel_QuitKeyClosesOnce(t *testing.T) {
	t.Parallel()

	var closes atomic.Int32
	m := newTestModel(func() { closes.Add(1) })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(talkModel)
	if cmd == nil {
		t.Fatalf("expected close command")
	}
	cmd()
	if !m.closing {
		t.Fatalf("model should be closing")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd != nil {
		cmd()
	}
	if got := closes.Load(); got != 1 {
		t.Fatalf("close calls=%d, want 1", got)
	}
}

func TestRenderEntries_SkipsGaps(t *testing.T) {
	t.Parallel()

	out := renderEntries([]live.Entry{
		{},
		{Speaker: live.SpeakerModel, Text: "Welcome", Final: true},
	}, 0)
	if strings.Count(out, "\n") != 0 || !strings.Contains(out, "Welcome") {
		t.Fatalf("out=%q", out)
	}
}
