package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vango-go/portfolio/pkg/core/live"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	modelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	draftStyle  = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type statusMsg struct {
	state   live.State
	message string
}

type transcriptMsg struct {
	index int
	entry live.Entry
}

type doneMsg struct{ err error }

// talkModel renders a running pipeline. Pipeline hooks feed statusMsg and
// transcriptMsg values into events; run blocks until the session ends.
type talkModel struct {
	title  string
	events <-chan tea.Msg
	run    func() error
	close  func()

	spinner  spinner.Model
	viewport viewport.Model

	state   live.State
	status  string
	entries []live.Entry
	closing bool
	done    bool
	err     error
}

func newTalkModel(title string, events <-chan tea.Msg, run func() error, closeFn func()) talkModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return talkModel{
		title:    title,
		events:   events,
		run:      run,
		close:    closeFn,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		status:   live.StatusInitializing,
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m talkModel) Init() tea.Cmd {
	run := m.run
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.events),
		func() tea.Msg { return doneMsg{err: run()} },
	)
}

func (m talkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.closing || m.close == nil {
				return m, nil
			}
			m.closing = true
			m.status = "Closing..."
			closeFn := m.close
			return m, func() tea.Msg {
				closeFn()
				return nil
			}
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-3)
		m.refresh()
		return m, nil

	case statusMsg:
		m.state = msg.state
		m.status = msg.message
		return m, waitForEvent(m.events)

	case transcriptMsg:
		m.apply(msg.index, msg.entry)
		m.refresh()
		return m, waitForEvent(m.events)

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m talkModel) busy() bool {
	return m.state == live.StateIdle || m.state == live.StateInitializing || m.state == live.StateConnecting
}

func (m *talkModel) apply(index int, entry live.Entry) {
	switch {
	case index < 0:
	case index < len(m.entries):
		m.entries[index] = entry
	default:
		for len(m.entries) < index {
			m.entries = append(m.entries, live.Entry{})
		}
		m.entries = append(m.entries, entry)
	}
}

func (m *talkModel) refresh() {
	m.viewport.SetContent(renderEntries(m.entries, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m talkModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	case m.busy() && !m.done:
		b.WriteString(m.spinner.View() + " " + statusStyle.Render(m.status))
	default:
		b.WriteString(statusStyle.Render(m.status))
	}
	if !m.done {
		b.WriteString(statusStyle.Render("  (q to quit)"))
	}
	b.WriteString("\n")
	return b.String()
}

func speakerLabel(s live.Speaker) string {
	if s == live.SpeakerUser {
		return userStyle.Render("You")
	}
	return modelStyle.Render("Assistant")
}

// renderEntries lays out the transcript. Entries still being spoken are dimmed.
func renderEntries(entries []live.Entry, width int) string {
	textStyle := lipgloss.NewStyle()
	if width > 0 {
		textStyle = textStyle.Width(width)
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Speaker == "" {
			continue
		}
		text := speakerLabel(e.Speaker) + ": " + e.Text
		if !e.Final {
			text = speakerLabel(e.Speaker) + ": " + draftStyle.Render(e.Text)
		}
		lines = append(lines, textStyle.Render(text))
	}
	return strings.Join(lines, "\n")
}
