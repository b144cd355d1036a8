package live

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Entry is one utterance in the transcript. It is immutable once Final.
type Entry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
	Final   bool    `json:"is_final"`
}

// Transcript is an ordered list of entries built from streamed fragments.
// It is not safe for concurrent use.
type Transcript struct {
	entries []Entry
}

// Apply merges a fragment into the transcript. When the last entry belongs to
// the same speaker and is still open, the text is appended to it and its
// finality is replaced; otherwise a new entry is appended. The index and value
// of the affected entry are returned.
func (t *Transcript) Apply(speaker Speaker, text string, final bool) (int, Entry) {
	if n := len(t.entries); n > 0 {
		last := &t.entries[n-1]
		if last.Speaker == speaker && !last.Final {
			last.Text += text
			last.Final = final
			return n - 1, *last
		}
	}
	t.entries = append(t.entries, Entry{Speaker: speaker, Text: text, Final: final})
	return len(t.entries) - 1, t.entries[len(t.entries)-1]
}

// Entries returns a copy of the current entries.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}
