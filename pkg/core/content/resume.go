// Package content holds the portfolio's resume data and everything derived
// from it: page content, the conversation persona and markdown rendering.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Link struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

type Contact struct {
	Email     string `yaml:"email" json:"email"`
	Portfolio string `yaml:"portfolio" json:"portfolio"`
	Links     []Link `yaml:"links" json:"links"`
}

type WorkExperience struct {
	Title       string   `yaml:"title" json:"title"`
	Company     string   `yaml:"company" json:"company"`
	Date        string   `yaml:"date" json:"date"`
	Description string   `yaml:"description" json:"description"`
	Points      []string `yaml:"points" json:"points"`
}

type Education struct {
	Degree      string `yaml:"degree" json:"degree"`
	Institution string `yaml:"institution" json:"institution"`
	Date        string `yaml:"date" json:"date"`
	Details     string `yaml:"details" json:"details"`
}

type Project struct {
	Title       string   `yaml:"title" json:"title"`
	Tech        []string `yaml:"tech" json:"tech"`
	Description string   `yaml:"description" json:"description"`
	Points      []string `yaml:"points" json:"points"`
	URL         string   `yaml:"url" json:"url"`
}

type Skills struct {
	Programming []string `yaml:"programming" json:"programming"`
	AIML        []string `yaml:"ai_ml" json:"ai_ml"`
	Data        []string `yaml:"data" json:"data"`
	Misc        []string `yaml:"misc" json:"misc"`
	Soft        []string `yaml:"soft" json:"soft"`
}

type Achievement struct {
	Title        string   `yaml:"title" json:"title"`
	Organization string   `yaml:"organization" json:"organization"`
	Date         string   `yaml:"date" json:"date"`
	Points       []string `yaml:"points" json:"points"`
}

// Badge parameterizes the decorative 3D badge shown on the About page.
type Badge struct {
	Name  string `yaml:"name" json:"name"`
	Image string `yaml:"image" json:"image"`
}

// Resume is the full portfolio content.
type Resume struct {
	Name           string           `yaml:"name" json:"name"`
	Title          string           `yaml:"title" json:"title,omitempty"`
	Contact        Contact          `yaml:"contact" json:"contact"`
	Summary        string           `yaml:"summary" json:"summary"`
	WorkExperience []WorkExperience `yaml:"work_experience" json:"workExperience"`
	Education      []Education      `yaml:"education" json:"education"`
	Projects       []Project        `yaml:"projects" json:"projects"`
	Skills         Skills           `yaml:"skills" json:"skills"`
	Achievements   []Achievement    `yaml:"achievements" json:"achievements"`

	Badge      *Badge `yaml:"badge" json:"badge,omitempty"`
	ResumeFile string `yaml:"resume_file" json:"resumeFile,omitempty"`
}

// Default returns the built-in portfolio content.
func Default() Resume {
	r, err := Parse(defaultYAML)
	if err != nil {
		panic("content: invalid built-in resume: " + err.Error())
	}
	return r
}

// Load reads a resume from a YAML file. An empty path returns Default.
func Load(path string) (Resume, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Resume{}, fmt.Errorf("read content file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return Resume{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a YAML resume.
func Parse(data []byte) (Resume, error) {
	var r Resume
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Resume{}, fmt.Errorf("parse content: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Resume{}, err
	}
	return r, nil
}

// Validate checks the fields pages and art generation rely on.
func (r Resume) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("content: name is required")
	}
	seen := make(map[string]struct{}, len(r.Projects))
	for i, p := range r.Projects {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			return fmt.Errorf("content: projects[%d].title is required", i)
		}
		if _, ok := seen[title]; ok {
			return fmt.Errorf("content: duplicate project title %q", title)
		}
		seen[title] = struct{}{}
	}
	for i, l := range r.Contact.Links {
		if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.URL) == "" {
			return fmt.Errorf("content: contact.links[%d] needs name and url", i)
		}
	}
	return nil
}

// BadgeOrDefault returns the badge parameters, falling back to the resume name.
func (r Resume) BadgeOrDefault() Badge {
	if r.Badge != nil {
		b := *r.Badge
		if b.Name == "" {
			b.Name = r.Name
		}
		return b
	}
	return Badge{Name: r.Name, Image: "/static/badge.svg"}
}
