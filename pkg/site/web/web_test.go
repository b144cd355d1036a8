package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/content"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(content.Default(), "/v1/live")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func render(t *testing.T, r *Renderer, page content.Page) string {
	t.Helper()
	rr := httptest.NewRecorder()
	if err := r.Render(rr, page); err != nil {
		t.Fatalf("Render(%s): %v", page, err)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type=%q", ct)
	}
	return rr.Body.String()
}

func TestRender_AboutMountsBadge(t *testing.T) {
	r := newRenderer(t)
	body := render(t, r, content.PageAbout)

	if !strings.Contains(body, `id="badge"`) || !strings.Contains(body, "/static/badge.js") {
		t.Fatal("about page should mount the badge")
	}
	if !strings.Contains(body, content.Default().Name) {
		t.Fatal("missing name")
	}
	if !strings.Contains(body, `id="live-open"`) {
		t.Fatal("missing live button")
	}
	if !strings.Contains(body, `window.PORTFOLIO_LIVE_PATH = "\/v1\/live"`) {
		t.Fatalf("live path not injected as a JS string")
	}
}

func TestRender_OtherPagesHaveNoBadge(t *testing.T) {
	r := newRenderer(t)
	for _, page := range []content.Page{content.PageProjects, content.PageLinks} {
		if body := render(t, r, page); strings.Contains(body, `id="badge"`) {
			t.Fatalf("%s page should not mount the badge", page)
		}
	}
}

func TestRender_ProjectsStartOnPlaceholders(t *testing.T) {
	r := newRenderer(t)
	body := render(t, r, content.PageProjects)

	projects := content.Default().Projects
	if len(projects) == 0 {
		t.Skip("no projects in default content")
	}
	for _, p := range projects {
		want := strings.ReplaceAll(art.PlaceholderURL(p.Title), "&", "&amp;")
		if !strings.Contains(body, want) {
			t.Fatalf("missing placeholder %q", want)
		}
	}
	if !strings.Contains(body, `id="generate-art"`) || !strings.Contains(body, "/static/projects.js") {
		t.Fatal("missing art button or script")
	}
}

func TestRender_LinksListsContacts(t *testing.T) {
	r := newRenderer(t)
	body := render(t, r, content.PageLinks)
	for _, l := range content.Default().Contact.Links {
		if !strings.Contains(body, l.Name) {
			t.Fatalf("missing link %q", l.Name)
		}
	}
}

func TestRender_EscapesContent(t *testing.T) {
	res := content.Default()
	res.Name = `<script>alert(1)</script>`
	r, err := NewRenderer(res, "/v1/live")
	if err != nil {
		t.Fatal(err)
	}
	if body := render(t, r, content.PageLinks); strings.Contains(body, "<script>alert(1)") {
		t.Fatal("name was not escaped")
	}
}

func TestStatic_ServesEmbeddedAssets(t *testing.T) {
	h := Static()
	for _, path := range []string{"/static/live.js", "/static/site.css", "/static/projects.js", "/static/badge.svg"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK || rr.Body.Len() == 0 {
			t.Fatalf("%s: status=%d", path, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing asset status=%d", rr.Code)
	}
}
