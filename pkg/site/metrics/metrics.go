// Package metrics exposes the site's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/live"
)

// Metrics holds all Prometheus metrics for the site.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Live session metrics
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	LiveAudioUnitsTotal *prometheus.CounterVec

	// Art metrics
	ArtCardsTotal *prometheus.CounterVec

	// Rate limit metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "portfolio"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 30, 90},
		},
		[]string{"method", "route"},
	)

	liveSessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live sessions",
		},
	)

	liveSessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of finished live sessions",
		},
		[]string{"outcome"},
	)

	liveSessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900},
		},
	)

	liveAudioUnitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_units_total",
			Help:      "Audio units moved through live sessions",
		},
		[]string{"kind"},
	)

	artCardsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "art_cards_total",
			Help:      "Project cards processed by the art service",
		},
		[]string{"outcome"},
	)

	rateLimitHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit hits",
		},
		[]string{"limit"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		liveSessionsActive,
		liveSessionsTotal,
		liveSessionDuration,
		liveAudioUnitsTotal,
		artCardsTotal,
		rateLimitHits,
	)

	return &Metrics{
		registry:            registry,
		RequestsTotal:       requestsTotal,
		RequestDuration:     requestDuration,
		LiveSessionsActive:  liveSessionsActive,
		LiveSessionsTotal:   liveSessionsTotal,
		LiveSessionDuration: liveSessionDuration,
		LiveAudioUnitsTotal: liveAudioUnitsTotal,
		ArtCardsTotal:       artCardsTotal,
		RateLimitHits:       rateLimitHits,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request. Its signature matches
// mw.Observer.
func (m *Metrics) ObserveRequest(r *http.Request, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route := Route(r.URL.Path)
	m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
}

// Route collapses a request path onto a fixed label set.
func Route(path string) string {
	switch path {
	case "/", "/projects", "/links", "/resume",
		"/v1/live", "/healthz", "/readyz", "/metrics",
		"/api/content", "/api/projects/art":
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static"
	}
	return "other"
}

// RecordLiveSessionStart records a new live session starting.
func (m *Metrics) RecordLiveSessionStart() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd records a live session ending with its counters.
func (m *Metrics) RecordLiveSessionEnd(outcome string, duration time.Duration, stats live.Stats) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(outcome).Inc()
	m.LiveSessionDuration.Observe(duration.Seconds())
	m.LiveAudioUnitsTotal.WithLabelValues("sent").Add(float64(stats.UnitsSent))
	m.LiveAudioUnitsTotal.WithLabelValues("dropped").Add(float64(stats.UnitsDropped))
	m.LiveAudioUnitsTotal.WithLabelValues("played").Add(float64(stats.ChunksPlayed))
	m.LiveAudioUnitsTotal.WithLabelValues("decode_failed").Add(float64(stats.DecodeFailures))
}

// RecordLiveSessionRejected counts a session refused before it started.
func (m *Metrics) RecordLiveSessionRejected(reason string) {
	if m == nil {
		return
	}
	m.LiveSessionsTotal.WithLabelValues("rejected_" + reason).Inc()
}

// RecordArt records one card outcome. Its signature matches art.Options.Observe.
func (m *Metrics) RecordArt(outcome art.Outcome) {
	if m == nil {
		return
	}
	m.ArtCardsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limit string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(limit).Inc()
}
