package handlers

import (
	"net/http"

	"github.com/vango-go/portfolio/pkg/site/config"
	"github.com/vango-go/portfolio/pkg/site/lifecycle"
	"github.com/vango-go/portfolio/pkg/site/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports configuration problems and draining. A missing Gemini
// key is reported but does not make the site unready: pages still work and
// the AI features degrade.
type ReadyHandler struct {
	Config       config.Config
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK               bool     `json:"ok"`
		Draining         bool     `json:"draining"`
		GeminiConfigured bool     `json:"gemini_configured"`
		ArtCache         string   `json:"art_cache"`
		LiveSessions     int      `json:"live_sessions"`
		LimitsEnabled    bool     `json:"limits_enabled"`
		Issues           []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if err := h.Config.Validate(); err != nil {
		issues = append(issues, err.Error())
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:               ok,
		Draining:         draining,
		GeminiConfigured: h.Config.GeminiAPIKey != "",
		ArtCache:         string(h.Config.ArtCacheType),
		LiveSessions:     h.LiveSessions.Count(),
		LimitsEnabled:    (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) || h.Config.LiveMaxSessionsPerClient > 0,
		Issues:           issues,
	})
}
