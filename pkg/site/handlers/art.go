package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/content"
)

// ArtGenerator fills project cards with cover art.
type ArtGenerator interface {
	GenerateAll(ctx context.Context, cards []art.Card) []art.Card
}

// ArtHandler runs art generation for every project. It always answers 200
// with one card per project; cards whose generation failed keep their
// placeholder image.
type ArtHandler struct {
	Generator ArtGenerator
	Projects  []content.Project
	Timeout   time.Duration
	Logger    *slog.Logger
}

type artResponse struct {
	Projects []art.Card `json:"projects"`
}

func (h ArtHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	start := time.Now()
	cards := art.Cards(h.Projects)
	if h.Generator != nil {
		cards = h.Generator.GenerateAll(ctx, cards)
	}

	if h.Logger != nil {
		h.Logger.Info("project art",
			"request_id", requestIDFromContext(r.Context()),
			"cards", len(cards),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	writeJSON(w, http.StatusOK, artResponse{Projects: cards})
}
