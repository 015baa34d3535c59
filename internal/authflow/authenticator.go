package authflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"cleat/internal/tokenstore"
	"cleat/pkg/logging"
	"cleat/pkg/oauth"
)

// DefaultExpiryBuffer is how early before its expiry a token is treated as
// expired, covering clock skew and the duration of the call it authorizes.
const DefaultExpiryBuffer = 60 * time.Second

// DeviceNotification is the device-flow information forwarded to an external
// notifier so the approval can happen away from this terminal. It carries
// everything a human needs and never the device code itself.
type DeviceNotification struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int64
}

// DeviceNotifier forwards device-flow instructions to an external channel
// (chat message, push notification). Notifier failures are logged and
// swallowed: the instructions are always printed locally too.
type DeviceNotifier func(ctx context.Context, n DeviceNotification) error

// Authenticator produces usable access tokens for tool servers. It caches
// discovery results and tokens for the process lifetime, persists tokens
// through the injected store, and runs an interactive flow only when nothing
// cheaper works.
type Authenticator struct {
	client *oauth.Client
	store  *tokenstore.Store

	// mu serializes token acquisition so concurrent callers never observe a
	// half-refreshed token and never run duplicate interactive flows.
	mu      sync.Mutex
	configs map[string]*oauth.Config
	tokens  map[string]*oauth.TokenSet

	manualToken      string
	preferDeviceFlow bool
	scopes           []string
	callbackPort     int
	callbackTimeout  time.Duration
	expiryBuffer     time.Duration

	notifier    DeviceNotifier
	openBrowser func(url string) error
	out         io.Writer

	// Flow runners, injectable for tests.
	runCodeFlow   func(ctx context.Context, cfg *oauth.Config) (*oauth.TokenSet, error)
	runDeviceFlow func(ctx context.Context, cfg *oauth.Config) (*oauth.TokenSet, error)
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithManualToken supplies a pre-issued bearer token. OAuth is disabled
// entirely; the token is used verbatim and never refreshed or persisted.
func WithManualToken(token string) Option {
	return func(a *Authenticator) {
		a.manualToken = token
	}
}

// WithPreferDeviceFlow selects the device flow over the code flow when the
// server supports it, for headless environments without a browser.
func WithPreferDeviceFlow(prefer bool) Option {
	return func(a *Authenticator) {
		a.preferDeviceFlow = prefer
	}
}

// WithScopes sets the scopes requested in authorization flows, overriding
// the scopes the protected resource advertises.
func WithScopes(scopes []string) Option {
	return func(a *Authenticator) {
		a.scopes = scopes
	}
}

// WithCallbackPort sets the local callback port for the code flow.
func WithCallbackPort(port int) Option {
	return func(a *Authenticator) {
		a.callbackPort = port
	}
}

// WithCallbackTimeout bounds how long the code flow waits for the browser
// redirect.
func WithCallbackTimeout(timeout time.Duration) Option {
	return func(a *Authenticator) {
		a.callbackTimeout = timeout
	}
}

// WithExpiryBuffer sets the early-expiry margin for token validity checks.
func WithExpiryBuffer(buffer time.Duration) Option {
	return func(a *Authenticator) {
		a.expiryBuffer = buffer
	}
}

// WithDeviceNotifier forwards device-flow instructions to an external
// notifier in addition to printing them.
func WithDeviceNotifier(notifier DeviceNotifier) Option {
	return func(a *Authenticator) {
		a.notifier = notifier
	}
}

// WithBrowserOpener replaces how the code flow opens the browser.
func WithBrowserOpener(open func(url string) error) Option {
	return func(a *Authenticator) {
		a.openBrowser = open
	}
}

// WithOutput sets where user-facing flow instructions are written.
// Defaults to stderr so instructions never mix with piped command output.
func WithOutput(w io.Writer) Option {
	return func(a *Authenticator) {
		a.out = w
	}
}

// NewAuthenticator creates an authenticator backed by the given OAuth client
// and token store.
func NewAuthenticator(client *oauth.Client, store *tokenstore.Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		client:          client,
		store:           store,
		configs:         make(map[string]*oauth.Config),
		tokens:          make(map[string]*oauth.TokenSet),
		callbackTimeout: DefaultCallbackTimeout,
		expiryBuffer:    DefaultExpiryBuffer,
		openBrowser:     OpenBrowser,
		out:             os.Stderr,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.runCodeFlow = a.codeFlow
	a.runDeviceFlow = a.deviceFlow

	return a
}

// EnsureToken returns a bearer token usable for the given server, running
// whatever part of the authentication sequence is needed: cached token,
// persisted token, refresh, or a full interactive flow.
func (a *Authenticator) EnsureToken(ctx context.Context, serverURL string) (string, error) {
	token, err := a.ensureTokenSet(ctx, serverURL)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Login runs the same sequence as EnsureToken and returns the full token
// set, for callers that present expiry and scope details to the user.
func (a *Authenticator) Login(ctx context.Context, serverURL string) (*oauth.TokenSet, error) {
	return a.ensureTokenSet(ctx, serverURL)
}

func (a *Authenticator) ensureTokenSet(ctx context.Context, serverURL string) (*oauth.TokenSet, error) {
	// A manual token short-circuits everything: no discovery, no refresh,
	// no persistence.
	if a.manualToken != "" {
		return &oauth.TokenSet{AccessToken: a.manualToken}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	root := oauth.NormalizeServerURL(serverURL)

	cfg, err := a.configLocked(ctx, root)
	if err != nil {
		return nil, err
	}

	token := a.tokenLocked(root)

	if token != nil && !token.IsExpired(a.expiryBuffer) {
		return token, nil
	}

	// Expired but refreshable: try the silent path first.
	if token != nil && token.Refreshable() {
		refreshed, err := a.client.Refresh(ctx, cfg, token)
		if err == nil {
			logging.Debug("AuthFlow", "Refreshed token for %s", root)
			a.tokens[root] = refreshed
			a.persistLocked(root, refreshed)
			return refreshed, nil
		}

		// A refresh token that no longer works is worse than none: drop it
		// so the interactive flow starts clean.
		logging.Warn("AuthFlow", "Token refresh failed for %s, re-authenticating: %v", root, err)
		delete(a.tokens, root)
		if delErr := a.store.Delete(root); delErr != nil {
			logging.Warn("AuthFlow", "Failed to drop stale token for %s: %v", root, delErr)
		}
	}

	token, err = a.interactiveLocked(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.tokens[root] = token
	a.persistLocked(root, token)
	return token, nil
}

// configLocked returns the discovery config for root, discovering on first
// use. Caller holds a.mu.
func (a *Authenticator) configLocked(ctx context.Context, root string) (*oauth.Config, error) {
	if cfg, ok := a.configs[root]; ok {
		return cfg, nil
	}

	cfg, err := a.client.Discover(ctx, root)
	if err != nil {
		return nil, err
	}
	a.configs[root] = cfg
	return cfg, nil
}

// tokenLocked returns the cached token for root, loading from the store on
// first use. Caller holds a.mu.
func (a *Authenticator) tokenLocked(root string) *oauth.TokenSet {
	if token, ok := a.tokens[root]; ok {
		return token
	}

	token, err := a.store.Load(root)
	if err != nil || token == nil {
		return nil
	}
	a.tokens[root] = token
	return token
}

// interactiveLocked runs the appropriate interactive flow. Caller holds a.mu.
func (a *Authenticator) interactiveLocked(ctx context.Context, cfg *oauth.Config) (*oauth.TokenSet, error) {
	if a.preferDeviceFlow && cfg.SupportsDeviceFlow() {
		return a.runDeviceFlow(ctx, cfg)
	}
	if a.preferDeviceFlow {
		logging.Info("AuthFlow", "Device flow preferred but not offered by %s, using browser flow", cfg.AuthorizationServer)
	}
	return a.runCodeFlow(ctx, cfg)
}

// persistLocked saves a token, logging instead of failing: a token that
// could not be written still authenticates this process.
func (a *Authenticator) persistLocked(root string, token *oauth.TokenSet) {
	if err := a.store.Save(root, token); err != nil {
		logging.Warn("AuthFlow", "Failed to persist token for %s: %v", root, err)
	}
}

// InvalidateToken drops the cached and persisted token for a server, forcing
// the next EnsureToken to re-authenticate. Used when a server rejects a
// token that looked valid locally.
func (a *Authenticator) InvalidateToken(serverURL string) {
	if a.manualToken != "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	root := oauth.NormalizeServerURL(serverURL)
	delete(a.tokens, root)
	if err := a.store.Delete(root); err != nil {
		logging.Warn("AuthFlow", "Failed to delete rejected token for %s: %v", root, err)
	}
}

// RefreshNow forces a refresh of the current token for a server, bypassing
// the expiry check. Fails when no refreshable token exists.
func (a *Authenticator) RefreshNow(ctx context.Context, serverURL string) (*oauth.TokenSet, error) {
	if a.manualToken != "" {
		return nil, fmt.Errorf("a manually configured token cannot be refreshed")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	root := oauth.NormalizeServerURL(serverURL)

	cfg, err := a.configLocked(ctx, root)
	if err != nil {
		return nil, err
	}

	token := a.tokenLocked(root)
	if token == nil {
		return nil, fmt.Errorf("no stored token for %s", root)
	}
	if !token.Refreshable() {
		return nil, fmt.Errorf("stored token for %s has no refresh token", root)
	}

	refreshed, err := a.client.Refresh(ctx, cfg, token)
	if err != nil {
		return nil, err
	}

	a.tokens[root] = refreshed
	a.persistLocked(root, refreshed)
	return refreshed, nil
}

// WatchStore drops cached tokens whenever the token directory changes on
// disk, so a login or logout performed by another process is picked up
// without restarting. The caller stops the returned watcher when done.
func (a *Authenticator) WatchStore() (*tokenstore.Watcher, error) {
	w := tokenstore.NewWatcher(tokenstore.WatcherConfig{
		Dir: a.store.Dir(),
		OnChange: func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if len(a.tokens) == 0 {
				return
			}
			logging.Debug("AuthFlow", "Token directory changed, dropping %d cached tokens", len(a.tokens))
			a.tokens = make(map[string]*oauth.TokenSet)
		},
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// requestScopes returns the scopes to ask for: explicitly configured scopes
// win, then whatever the protected resource advertises.
func (a *Authenticator) requestScopes(cfg *oauth.Config) []string {
	if len(a.scopes) > 0 {
		return a.scopes
	}
	return cfg.ResourceScopes
}
