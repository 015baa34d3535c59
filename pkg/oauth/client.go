package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for token and registration
	// requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataTimeout bounds each individual metadata fetch during
	// discovery, so a hung well-known endpoint fails fast.
	DefaultMetadataTimeout = 10 * time.Second

	// DefaultConfigCacheTTL is the default TTL for cached discovery results.
	DefaultConfigCacheTTL = 5 * time.Minute

	// DefaultClientName is the client_name sent in registration requests.
	DefaultClientName = "cleat"

	// maxMetadataBytes caps how much of a metadata or token response body is
	// read. Well-known documents are small; anything bigger is not one.
	maxMetadataBytes = 1 << 20

	// slowDownIncrement is added permanently to the device-flow polling
	// interval on every slow_down response (RFC 8628 §3.5).
	slowDownIncrement = 5 * time.Second
)

// configCacheEntry holds a cached discovery result with its timestamp.
type configCacheEntry struct {
	config    *Config
	fetchedAt time.Time
}

// Client performs the OAuth 2.1 protocol operations: two-step metadata
// discovery, dynamic client registration, token exchange, refresh, and
// device-flow polling.
//
// A Client is safe for concurrent use. Discovery results are cached per
// normalized server URL with a TTL, and concurrent discoveries for the same
// server are deduplicated. Registrations are memoized for the lifetime of the
// process.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	clientName string

	// Discovery cache with mutex for thread safety
	configMu        sync.RWMutex
	configCache     map[string]*configCacheEntry
	configTTL       time.Duration
	metadataTimeout time.Duration

	// singleflight group to deduplicate concurrent discoveries
	configGroup singleflight.Group

	// Registration memoization
	regMu    sync.Mutex
	regCache map[string]*RegisteredClient

	// Injected for tests; real clock and context-aware sleep otherwise.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientName sets the client_name used in registration requests.
func WithClientName(name string) ClientOption {
	return func(c *Client) {
		c.clientName = name
	}
}

// WithConfigCacheTTL sets the discovery cache TTL.
func WithConfigCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.configTTL = ttl
	}
}

// WithMetadataTimeout sets the per-request timeout for metadata fetches.
func WithMetadataTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTimeout = timeout
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: DefaultHTTPTimeout},
		logger:          slog.Default(),
		clientName:      DefaultClientName,
		configCache:     make(map[string]*configCacheEntry),
		configTTL:       DefaultConfigCacheTTL,
		metadataTimeout: DefaultMetadataTimeout,
		regCache:        make(map[string]*RegisteredClient),
		now:             time.Now,
		sleep:           sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ClearConfigCache drops all cached discovery results and memoized
// registrations. Useful in tests and when metadata must be refetched
// immediately.
func (c *Client) ClearConfigCache() {
	c.configMu.Lock()
	c.configCache = make(map[string]*configCacheEntry)
	c.configMu.Unlock()

	c.regMu.Lock()
	c.regCache = make(map[string]*RegisteredClient)
	c.regMu.Unlock()
}

// sleepContext waits for d or until the context is cancelled, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// getJSON fetches a JSON document into out, bounded by the metadata timeout
// and the metadata size cap.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", rawURL, err)
	}

	return nil
}

// postFormRaw posts a form-encoded request and returns the status code and
// body. OAuth endpoints signal protocol-level failures in the body, so a
// non-2xx status is not an error at this layer.
func (c *Client) postFormRaw(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request for %s: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	return resp.StatusCode, body, nil
}
