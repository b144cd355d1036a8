// Package web renders the portfolio pages and serves their static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/content"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// PageData is what every page template receives.
type PageData struct {
	Page    content.Page
	Pages   []content.Page
	Resume  content.Resume
	Badge   content.Badge
	Summary template.HTML
	Cards   []art.Card
	// LivePath is the WebSocket route the live button connects to.
	LivePath string
}

// Renderer executes the page templates against one resume.
type Renderer struct {
	pages    map[content.Page]*template.Template
	resume   content.Resume
	summary  template.HTML
	livePath string
}

// NewRenderer parses the embedded templates. The summary is rendered from
// markdown once.
func NewRenderer(resume content.Resume, livePath string) (*Renderer, error) {
	summary, err := content.Markdown(resume.Summary)
	if err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	funcs := template.FuncMap{
		"markdown": content.Markdown,
		"firstN": func(n int, s []string) []string {
			if len(s) > n {
				return s[:n]
			}
			return s
		},
	}
	files := map[content.Page]string{
		content.PageAbout:    "templates/about.html",
		content.PageProjects: "templates/projects.html",
		content.PageLinks:    "templates/links.html",
	}
	r := &Renderer{
		pages:    make(map[content.Page]*template.Template, len(files)),
		resume:   resume,
		summary:  summary,
		livePath: livePath,
	}
	for page, file := range files {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Data builds the template data for a page. Project cards start on their
// placeholder images.
func (r *Renderer) Data(page content.Page) PageData {
	return PageData{
		Page:     page,
		Pages:    content.Pages,
		Resume:   r.resume,
		Badge:    r.resume.BadgeOrDefault(),
		Summary:  r.summary,
		Cards:    art.Cards(r.resume.Projects),
		LivePath: r.livePath,
	}
}

// Render writes a full HTML page. The template is executed into a buffer so a
// failure never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, page content.Page) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("web: no template for page %s", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", r.Data(page)); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets. Mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
