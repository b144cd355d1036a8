package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/vango-go/portfolio/pkg/core/live"
)

// plainPrinter writes status changes and finished utterances as lines.
type plainPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[int]struct{}
	last    string
}

func newPlainPrinter(w io.Writer) *plainPrinter {
	return &plainPrinter{w: w, printed: make(map[int]struct{})}
}

func (p *plainPrinter) Status(_ live.State, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if message == "" || message == p.last {
		return
	}
	p.last = message
	fmt.Fprintf(p.w, "* %s\n", message)
}

func (p *plainPrinter) Transcript(index int, entry live.Entry) {
	if !entry.Final {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.printed[index]; ok {
		return
	}
	p.printed[index] = struct{}{}
	label := "Assistant"
	if entry.Speaker == live.SpeakerUser {
		label = "You"
	}
	fmt.Fprintf(p.w, "%s: %s\n", label, entry.Text)
}
