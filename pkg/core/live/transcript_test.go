package live

import "testing"

func TestTranscript_MergesOpenEntries(t *testing.T) {
	var tr Transcript
	tr.Apply(SpeakerUser, "Hel", false)
	tr.Apply(SpeakerUser, "lo", true)
	tr.Apply(SpeakerModel, "Hi", false)
	tr.Apply(SpeakerModel, " there", true)

	got := tr.Entries()
	want := []Entry{
		{Speaker: SpeakerUser, Text: "Hello", Final: true},
		{Speaker: SpeakerModel, Text: "Hi there", Final: true},
	}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTranscript_FinalEntryIsNotExtended(t *testing.T) {
	var tr Transcript
	tr.Apply(SpeakerUser, "one", true)
	idx, e := tr.Apply(SpeakerUser, "two", false)
	if idx != 1 {
		t.Fatalf("idx=%d want 1", idx)
	}
	if e.Text != "two" || e.Final {
		t.Fatalf("entry=%+v", e)
	}
	if tr.Entries()[0].Text != "one" {
		t.Fatalf("final entry mutated: %+v", tr.Entries()[0])
	}
}

func TestTranscript_SpeakerSwitchStartsNewEntry(t *testing.T) {
	var tr Transcript
	tr.Apply(SpeakerUser, "are you", false)
	idx, _ := tr.Apply(SpeakerModel, "Yes", false)
	if idx != 1 || tr.Len() != 2 {
		t.Fatalf("idx=%d len=%d", idx, tr.Len())
	}
	// The open user entry is left as is; later user text starts a new entry
	// because the last entry now belongs to the model.
	idx, _ = tr.Apply(SpeakerUser, " there", true)
	if idx != 2 {
		t.Fatalf("idx=%d want 2", idx)
	}
}

func TestTranscript_EntriesIsCopy(t *testing.T) {
	var tr Transcript
	tr.Apply(SpeakerUser, "a", false)
	entries := tr.Entries()
	entries[0].Text = "mutated"
	if tr.Entries()[0].Text != "a" {
		t.Fatalf("Entries exposed internal slice")
	}
}
