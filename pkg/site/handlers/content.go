package handlers

import (
	"net/http"

	"github.com/vango-go/portfolio/pkg/core/content"
)

// ContentHandler serves the resume as JSON.
type ContentHandler struct {
	Resume content.Resume
}

func (h ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.Resume)
}
