package handlers

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-go/portfolio/pkg/core"
)

// ResumeHandler serves the downloadable resume file from Dir. Only the base
// name of File is used.
type ResumeHandler struct {
	Dir  string
	File string
}

func (h ResumeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, "GET, HEAD")
		return
	}
	reqID := requestIDFromContext(r.Context())

	name := filepath.Base(strings.TrimSpace(h.File))
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeCoreErrorJSON(w, reqID, core.NewNotFoundError("no resume file configured"), http.StatusNotFound)
		return
	}

	f, err := os.Open(filepath.Join(h.Dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeCoreErrorJSON(w, reqID, core.NewNotFoundError("resume file not found"), http.StatusNotFound)
			return
		}
		ce, status := coreErrorFrom(err, reqID)
		writeCoreErrorJSON(w, reqID, ce, status)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeCoreErrorJSON(w, reqID, core.NewNotFoundError("resume file not found"), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
