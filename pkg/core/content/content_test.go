package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_MatchesPortfolio(t *testing.T) {
	r := Default()
	if r.Name != "Prabhudayal Vaishnav" {
		t.Fatalf("name=%q", r.Name)
	}
	if len(r.Projects) != 3 {
		t.Fatalf("projects=%d", len(r.Projects))
	}
	if len(r.Contact.Links) != 4 {
		t.Fatalf("links=%d", len(r.Contact.Links))
	}
	if r.ResumeFile != "Prabhudayal_Vaishnav_Resume.pdf" {
		t.Fatalf("resume_file=%q", r.ResumeFile)
	}
	if r.Education[0].Details != "6th Semester - CGPA: 7.2/10" {
		t.Fatalf("details=%q", r.Education[0].Details)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"missing name":     "summary: hi\n",
		"empty title":      "name: A\nprojects:\n  - title: ''\n",
		"duplicate titles": "name: A\nprojects:\n  - title: X\n  - title: X\n",
		"bad link":         "name: A\ncontact:\n  links:\n    - name: GitHub\n",
		"bad yaml":         "name: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_FileAndDefault(t *testing.T) {
	r, err := Load("")
	if err != nil || r.Name == "" {
		t.Fatalf("Load(\"\")=%+v, %v", r.Name, err)
	}

	path := filepath.Join(t.TempDir(), "resume.yaml")
	if err := os.WriteFile(path, []byte("name: Ada\nprojects:\n  - title: Engine\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Name != "Ada" || r.Projects[0].Title != "Engine" {
		t.Fatalf("resume=%+v", r)
	}
	if b := r.BadgeOrDefault(); b.Name != "Ada" {
		t.Fatalf("badge=%+v", b)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSystemInstruction_EmbedsResumeJSON(t *testing.T) {
	s, err := SystemInstruction(Default())
	if err != nil {
		t.Fatalf("SystemInstruction: %v", err)
	}
	for _, want := range []string{
		"representing Prabhudayal Vaishnav",
		"Here is Prabhudayal's resume data in JSON format:\n{\n  \"name\": \"Prabhudayal Vaishnav\"",
		"\"workExperience\": [",
		"Grand Plaza: Voice AI Hotel Concierge System",
		"use your search tool",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("instruction missing %q", want)
		}
	}
	if strings.Contains(s, "resumeFile") || strings.Contains(s, "badge") {
		t.Fatalf("instruction leaks presentation fields")
	}
}

func TestPageForPath(t *testing.T) {
	if PageForPath("/projects") != PageProjects || PageForPath("/links") != PageLinks {
		t.Fatalf("known paths not mapped")
	}
	if PageForPath("/nope") != PageAbout {
		t.Fatalf("unknown path should map to About")
	}
	if !PageAbout.ShowsBadge() || PageProjects.ShowsBadge() || PageLinks.ShowsBadge() {
		t.Fatalf("badge must show only on About")
	}
}

func TestMarkdown(t *testing.T) {
	html, err := Markdown("Built with **Go**")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(string(html), "<strong>Go</strong>") {
		t.Fatalf("html=%q", html)
	}
	if html, _ := Markdown(""); html != "" {
		t.Fatalf("empty input rendered %q", html)
	}
}
