// Package gemini adapts google.golang.org/genai to the live pipeline's
// Dialer and to the art service's image generator.
package gemini

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/vango-go/portfolio/pkg/core"
)

const (
	DefaultImageModel = "imagen-4.0-generate-001"

	envAPIKey       = "API_KEY"
	envGeminiAPIKey = "GEMINI_API_KEY"
)

// Config configures the client. An empty APIKey is accepted; every remote call
// then fails with a config_missing error before any request is made.
type Config struct {
	APIKey     string
	ImageModel string
	// BaseURL overrides the endpoint. Live sessions use ws/wss, other calls http/https.
	BaseURL    string
	HTTPClient *http.Client
}

// APIKeyFromEnv returns GEMINI_API_KEY, falling back to API_KEY.
func APIKeyFromEnv() string {
	if v := strings.TrimSpace(os.Getenv(envGeminiAPIKey)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(envAPIKey))
}

// Client lazily builds one genai client and shares it between live sessions
// and image generation.
type Client struct {
	cfg Config

	mu sync.Mutex
	gc *genai.Client
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.ImageModel) == "" {
		cfg.ImageModel = DefaultImageModel
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &Client{cfg: cfg}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	if !c.Configured() {
		return nil, core.NewConfigMissingError("API_KEY environment variable not set", envAPIKey)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gc != nil {
		return c.gc, nil
	}
	cc := &genai.ClientConfig{
		APIKey:     c.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.cfg.HTTPClient,
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = c.cfg.BaseURL
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &core.Error{Type: core.ErrAPI, Message: "create genai client failed", Err: err}
	}
	c.gc = gc
	return gc, nil
}
