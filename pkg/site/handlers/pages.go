package handlers

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/content"
)

// PageRenderer renders one of the site's HTML pages.
type PageRenderer interface {
	Render(w http.ResponseWriter, page content.Page) error
}

// PagesHandler serves the About, Projects and Links pages. Any other path is
// a JSON 404.
type PagesHandler struct {
	Renderer PageRenderer
	Logger   *slog.Logger
}

func (h PagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFor(r.URL.Path)
	if !ok {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}
	if err := h.Renderer.Render(w, page); err != nil {
		reqID := requestIDFromContext(r.Context())
		if h.Logger != nil {
			h.Logger.Error("render page", "page", page.String(), "request_id", reqID, "error", err)
		}
		writeCoreErrorJSON(w, reqID, core.NewAPIError("failed to render page"), http.StatusInternalServerError)
	}
}

func pageFor(path string) (content.Page, bool) {
	for _, p := range content.Pages {
		if p.Path() == path {
			return p, true
		}
	}
	return content.PageAbout, false
}
