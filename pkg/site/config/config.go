package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/portfolio/pkg/core/art"
	"github.com/vango-go/portfolio/pkg/core/gemini"
	"github.com/vango-go/portfolio/pkg/core/live"
)

type Config struct {
	Addr string

	// ContentFile is a resume YAML file. Empty uses the embedded content.
	ContentFile string
	// ResumeDir holds the downloadable resume file named by the content.
	ResumeDir string

	// GeminiAPIKey may be empty; AI features then fail at first use.
	GeminiAPIKey  string
	GeminiBaseURL string
	LiveModel     string
	LiveVoice     string
	ImageModel    string

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	TrustProxyHeaders bool

	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Art generation.
	ArtCacheType       art.CacheType
	ArtCacheURL        string
	ArtCacheTTL        time.Duration
	ArtCacheMaxEntries int
	ArtConcurrency     int
	ArtTimeout         time.Duration

	// Live WebSocket mode (/v1/live).
	LiveMaxSessions          int
	LiveMaxSessionsPerClient int
	LiveMaxSessionDuration   time.Duration
	LiveMaxFrameBytes        int64
	LiveWindowSamples        int
	LiveConnectTimeout       time.Duration
	LiveMicrophoneTimeout    time.Duration
	LiveHandshakeTimeout     time.Duration
	LiveWSPingInterval       time.Duration
	LiveWSWriteTimeout       time.Duration
	LiveOutboundQueueSize    int

	// In-memory limits (per client) for the art endpoint.
	LimitRPS   float64
	LimitBurst int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                     envOr("PORTFOLIO_ADDR", ":8080"),
		ContentFile:              envOr("PORTFOLIO_CONTENT_FILE", ""),
		ResumeDir:                envOr("PORTFOLIO_RESUME_DIR", "public"),
		GeminiAPIKey:             gemini.APIKeyFromEnv(),
		GeminiBaseURL:            envOr("PORTFOLIO_GEMINI_BASE_URL", ""),
		LiveModel:                envOr("PORTFOLIO_LIVE_MODEL", live.DefaultModel),
		LiveVoice:                envOr("PORTFOLIO_LIVE_VOICE", live.DefaultVoice),
		ImageModel:               envOr("PORTFOLIO_IMAGE_MODEL", gemini.DefaultImageModel),
		TrustProxyHeaders:        envBoolOr("PORTFOLIO_TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins:       make(map[string]struct{}),
		ArtCacheType:             art.CacheType(strings.ToLower(envOr("PORTFOLIO_ART_CACHE", string(art.CacheTypeMemory)))),
		ArtCacheURL:              envOr("PORTFOLIO_ART_CACHE_URL", ""),
		ArtCacheTTL:              envDurationOr("PORTFOLIO_ART_CACHE_TTL", 24*time.Hour),
		ArtCacheMaxEntries:       envIntOr("PORTFOLIO_ART_CACHE_MAX_ENTRIES", 64),
		ArtConcurrency:           envIntOr("PORTFOLIO_ART_CONCURRENCY", 4),
		ArtTimeout:               envDurationOr("PORTFOLIO_ART_TIMEOUT", 90*time.Second),
		LiveMaxSessions:          envIntOr("PORTFOLIO_LIVE_MAX_SESSIONS", 32),
		LiveMaxSessionsPerClient: envIntOr("PORTFOLIO_LIVE_MAX_SESSIONS_PER_CLIENT", 1),
		LiveMaxSessionDuration:   envDurationOr("PORTFOLIO_LIVE_MAX_DURATION", 15*time.Minute),
		LiveMaxFrameBytes:        envInt64Or("PORTFOLIO_LIVE_MAX_FRAME_BYTES", 64*1024),
		LiveWindowSamples:        envIntOr("PORTFOLIO_LIVE_WINDOW_SAMPLES", live.DefaultWindowSamples),
		LiveConnectTimeout:       envDurationOr("PORTFOLIO_LIVE_CONNECT_TIMEOUT", live.DefaultConnectTimeout),
		LiveMicrophoneTimeout:    envDurationOr("PORTFOLIO_LIVE_MICROPHONE_TIMEOUT", 60*time.Second),
		LiveHandshakeTimeout:     envDurationOr("PORTFOLIO_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:       envDurationOr("PORTFOLIO_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:       envDurationOr("PORTFOLIO_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveOutboundQueueSize:    envIntOr("PORTFOLIO_LIVE_OUTBOUND_QUEUE", 256),
		LimitRPS:                 envFloat64Or("PORTFOLIO_RATE_LIMIT_RPS", 0.2),
		LimitBurst:               envIntOr("PORTFOLIO_RATE_LIMIT_BURST", 2),
		ReadHeaderTimeout:        envDurationOr("PORTFOLIO_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:              envDurationOr("PORTFOLIO_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:           envDurationOr("PORTFOLIO_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:      envDurationOr("PORTFOLIO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("PORTFOLIO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants LoadFromEnv enforces. It is exported so tests
// and embedders building a Config by hand get the same checks.
func (cfg Config) Validate() error {
	switch cfg.ArtCacheType {
	case art.CacheTypeNone, art.CacheTypeMemory:
	case art.CacheTypeRedis, art.CacheTypePostgres:
		if strings.TrimSpace(cfg.ArtCacheURL) == "" {
			return fmt.Errorf("PORTFOLIO_ART_CACHE_URL must be set when PORTFOLIO_ART_CACHE=%s", cfg.ArtCacheType)
		}
	default:
		return fmt.Errorf("PORTFOLIO_ART_CACHE must be one of none|memory|redis|postgres")
	}
	if strings.TrimSpace(cfg.LiveModel) == "" {
		return fmt.Errorf("PORTFOLIO_LIVE_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.ImageModel) == "" {
		return fmt.Errorf("PORTFOLIO_IMAGE_MODEL must not be empty")
	}
	if cfg.ArtCacheTTL < 0 {
		return fmt.Errorf("PORTFOLIO_ART_CACHE_TTL must be >= 0")
	}
	if cfg.ArtCacheMaxEntries <= 0 {
		return fmt.Errorf("PORTFOLIO_ART_CACHE_MAX_ENTRIES must be > 0")
	}
	if cfg.ArtConcurrency <= 0 {
		return fmt.Errorf("PORTFOLIO_ART_CONCURRENCY must be > 0")
	}
	if cfg.ArtTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_ART_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxSessions <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_MAX_SESSIONS must be > 0")
	}
	if cfg.LiveMaxSessionsPerClient < 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_MAX_SESSIONS_PER_CLIENT must be >= 0")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_MAX_DURATION must be > 0")
	}
	if cfg.LiveWindowSamples <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_WINDOW_SAMPLES must be > 0")
	}
	if cfg.LiveMaxFrameBytes < int64(cfg.LiveWindowSamples)*4 {
		return fmt.Errorf("PORTFOLIO_LIVE_MAX_FRAME_BYTES must hold one capture window (%d bytes)", cfg.LiveWindowSamples*4)
	}
	if cfg.LiveConnectTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.LiveMicrophoneTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_MICROPHONE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveOutboundQueueSize <= 0 {
		return fmt.Errorf("PORTFOLIO_LIVE_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return fmt.Errorf("PORTFOLIO_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return fmt.Errorf("PORTFOLIO_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return fmt.Errorf("PORTFOLIO_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("PORTFOLIO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
