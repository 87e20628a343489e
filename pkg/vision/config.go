package vision

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
)

// KeySource resolves the provider credential at call time.
// A blank result is reported as ErrNoAPIKey.
type KeySource func() string

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string
	Keys    KeySource

	// Model overrides the provider default.
	Model string

	// MaxTokens limits the response length (OpenAI only).
	MaxTokens int

	// Timeouts
	ConnectTimeout   time.Duration
	ReadWriteTimeout time.Duration

	// Retry configuration. Retries apply to 429 and 5xx responses only.
	MaxRetries int
	RetryDelay time.Duration

	// HTTPClient overrides the client built from the timeouts.
	HTTPClient *http.Client

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = strings.TrimSuffix(url, "/") }
}

// WithAPIKey sets a fixed API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.Keys = func() string { return key }
	}
}

// WithKeySource sets a function consulted for the API key on every call.
func WithKeySource(src KeySource) Option {
	return func(c *Config) { c.Keys = src }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTimeouts sets the connect and read/write timeouts.
func WithTimeouts(connect, readWrite time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = connect
		c.ReadWriteTimeout = readWrite
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults shared by all providers.
func DefaultConfig() *Config {
	return &Config{
		Keys:             func() string { return "" },
		MaxTokens:        500,
		ConnectTimeout:   httpc.DefaultConnectTimeout,
		ReadWriteTimeout: httpc.DefaultReadWriteTimeout,
		RetryDelay:       250 * time.Millisecond,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// apiKey returns the trimmed key or "".
func (c *Config) apiKey() string {
	if c.Keys == nil {
		return ""
	}
	return strings.TrimSpace(c.Keys())
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return httpc.NewClient(httpc.Timeouts{
		Connect:   c.ConnectTimeout,
		ReadWrite: c.ReadWriteTimeout,
	})
}
