package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/live"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	b, _ := io.ReadAll(rr.Body)
	return string(b)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New("test")

	m.ObserveRequest(httptest.NewRequest(http.MethodGet, "/static/site.css", nil), 200, 10*time.Millisecond)
	m.ObserveRequest(httptest.NewRequest(http.MethodGet, "/wp-admin", nil), 404, time.Millisecond)
	m.RecordLiveSessionStart()
	m.RecordLiveSessionEnd("closed", time.Minute, live.Stats{UnitsSent: 10, UnitsDropped: 2, ChunksPlayed: 5})
	m.RecordLiveSessionRejected("capacity")
	m.RecordArt(art.OutcomeFallback)
	m.RecordRateLimitHit("art")

	body := scrape(t, m)
	for _, want := range []string{
		`test_http_requests_total{method="GET",route="/static",status="200"} 1`,
		`test_http_requests_total{method="GET",route="other",status="404"} 1`,
		`test_live_sessions_active 0`,
		`test_live_sessions_total{outcome="closed"} 1`,
		`test_live_sessions_total{outcome="rejected_capacity"} 1`,
		`test_live_audio_units_total{kind="sent"} 10`,
		`test_live_audio_units_total{kind="dropped"} 2`,
		`test_art_cards_total{outcome="fallback"} 1`,
		`test_rate_limit_hits_total{limit="art"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestRoute(t *testing.T) {
	cases := map[string]string{
		"/":                    "/",
		"/projects":            "/projects",
		"/resume":              "/resume",
		"/v1/live":             "/v1/live",
		"/static/js/live.js":   "/static",
		"/api/projects/art":    "/api/projects/art",
		"/api/projects/art/42": "other",
	}
	for in, want := range cases {
		if got := Route(in); got != want {
			t.Fatalf("Route(%q)=%q want %q", in, got, want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordArt(art.OutcomeGenerated)
	m.RecordLiveSessionStart()
	m.RecordRateLimitHit("art")
	m.ObserveRequest(httptest.NewRequest(http.MethodGet, "/", nil), 200, 0)
}
