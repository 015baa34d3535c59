package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cleat/internal/authflow"
	"cleat/internal/config"
	"cleat/internal/session"
	"cleat/internal/tokenstore"
	"cleat/pkg/logging"
	"cleat/pkg/oauth"
)

// ResolveServer picks the tool server a command targets. An explicit
// --endpoint wins and matches a configured server by URL when possible so
// its headers and auth settings apply; --server selects by name; with
// neither, a single configured server is used.
func ResolveServer(cfg *config.Config, flags *CommandFlags) (config.ServerConfig, error) {
	if flags.Server != "" && flags.Endpoint != "" {
		return config.ServerConfig{}, fmt.Errorf("only one of --server and --endpoint may be set")
	}

	if flags.Endpoint != "" {
		for _, srv := range cfg.Servers {
			if srv.Remote() && srv.URL == flags.Endpoint {
				return srv, nil
			}
		}
		return config.ServerConfig{
			Name:      "default",
			Transport: config.TransportHTTP,
			URL:       flags.Endpoint,
			Auth:      config.AuthConfig{Mode: config.AuthModeOAuth},
		}, nil
	}

	if flags.Server != "" {
		srv, ok := cfg.Server(flags.Server)
		if !ok {
			return config.ServerConfig{}, fmt.Errorf("server %q is not configured (configured: %s)",
				flags.Server, configuredNames(cfg))
		}
		return srv, nil
	}

	switch len(cfg.Servers) {
	case 0:
		return config.ServerConfig{}, fmt.Errorf("no servers configured: add one to the configuration or pass --endpoint")
	case 1:
		return cfg.Servers[0], nil
	default:
		return config.ServerConfig{}, fmt.Errorf("multiple servers configured, pass --server (configured: %s)",
			configuredNames(cfg))
	}
}

func configuredNames(cfg *config.Config) string {
	names := cfg.ServerNames()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// NewAuthenticator builds the token plumbing for a server from its auth
// configuration. Extra options are appended so commands can layer flow
// preferences (device flow, quiet output) on top.
func NewAuthenticator(cfg *config.Config, srv config.ServerConfig, extra ...authflow.Option) (*authflow.Authenticator, error) {
	store, err := tokenstore.NewStore(cfg.TokenDir)
	if err != nil {
		return nil, err
	}

	var opts []authflow.Option
	if srv.Auth.Mode == config.AuthModeToken {
		opts = append(opts, authflow.WithManualToken(srv.Auth.Token))
	}
	if len(srv.Auth.Scopes) > 0 {
		opts = append(opts, authflow.WithScopes(srv.Auth.Scopes))
	}
	if srv.Auth.CallbackPort != 0 {
		opts = append(opts, authflow.WithCallbackPort(srv.Auth.CallbackPort))
	}
	if srv.Auth.PreferDeviceFlow {
		opts = append(opts, authflow.WithPreferDeviceFlow(true))
	}
	opts = append(opts, extra...)

	client := oauth.NewClient(oauth.WithLogger(logging.Slog("OAuth")))
	return authflow.NewAuthenticator(client, store, opts...), nil
}

// NewSessionClient builds the session client for a resolved server. For
// stdio servers the subprocess log lands in the configured log directory,
// falling back to the default; a missing log directory only disables
// capture.
func NewSessionClient(cfg *config.Config, srv config.ServerConfig, tokens session.TokenSource) session.Client {
	if srv.Remote() {
		return session.NewRemoteClient(session.RemoteClientConfig{
			URL:     srv.URL,
			Tokens:  tokens,
			Headers: srv.Headers,
		})
	}

	logDir := cfg.LogDir
	if logDir == "" {
		dir, err := config.DefaultLogDir()
		if err != nil {
			logging.Debug("CLI", "No log directory for %s, subprocess output not captured: %v", srv.Name, err)
		} else {
			logDir = dir
		}
	}

	return session.NewLocalClient(session.LocalClientConfig{
		Name:         srv.Name,
		Command:      srv.Command,
		Args:         srv.Args,
		Env:          srv.Env,
		AllowedTools: srv.Tools,
		LogDir:       logDir,
	})
}

// Conn bundles a connected session with its resolved server and token
// plumbing. Auth is nil for stdio servers and servers with auth disabled.
type Conn struct {
	Server config.ServerConfig
	Auth   *authflow.Authenticator
	Client session.Client
}

// Close disconnects the session.
func (c *Conn) Close() error {
	return c.Client.Disconnect()
}

// Dial resolves the target server, wires authentication, and connects,
// classifying failures into actionable errors. A remote server whose OAuth
// metadata cannot be discovered is retried without credentials, so servers
// that never challenge keep working with the default configuration.
func Dial(ctx context.Context, cfg *config.Config, flags *CommandFlags, opts ...authflow.Option) (*Conn, error) {
	srv, err := ResolveServer(cfg, flags)
	if err != nil {
		return nil, err
	}

	var auth *authflow.Authenticator
	var tokens session.TokenSource
	if srv.Remote() && srv.Auth.Mode != config.AuthModeNone {
		auth, err = NewAuthenticator(cfg, srv, opts...)
		if err != nil {
			return nil, err
		}
		tokens = auth
	}

	client := NewSessionClient(cfg, srv, tokens)

	progress := NewProgress(flags.Quiet)
	progress.Start(fmt.Sprintf("Connecting to %s...", srv.Name))

	err = client.Connect(ctx)

	var discErr *oauth.DiscoveryError
	if err != nil && auth != nil && errors.As(err, &discErr) {
		progress.Stop()
		logging.Info("CLI", "No OAuth metadata at %s, connecting without credentials", srv.URL)
		auth = nil
		client = NewSessionClient(cfg, srv, nil)

		progress = NewProgress(flags.Quiet)
		progress.Start(fmt.Sprintf("Connecting to %s...", srv.Name))
		err = client.Connect(ctx)
	}

	if err != nil {
		progress.Fail("Failed to connect to " + srv.Name)
		return nil, classifyDialError(err, srv, auth != nil)
	}
	progress.Stop()

	return &Conn{Server: srv, Auth: auth, Client: client}, nil
}

// classifyDialError turns a raw connect failure into an error whose message
// tells the user what to do next.
func classifyDialError(err error, srv config.ServerConfig, hadAuth bool) error {
	var sessionAuthErr *session.AuthenticationRequiredError
	if errors.As(err, &sessionAuthErr) {
		// With auth wired, the interactive flow already ran and its token
		// was still rejected. Without it, the server challenged and the
		// user has to log in first.
		if hadAuth {
			return &AuthFailedError{Endpoint: srv.URL, Reason: err}
		}
		return &AuthRequiredError{Endpoint: srv.URL}
	}

	if isFlowFailure(err) {
		return &AuthFailedError{Endpoint: srv.URL, Reason: err}
	}

	if !srv.Remote() {
		return err
	}

	if connErr := ClassifyConnectionError(err, srv.URL); connErr != nil && connErr.Type != ConnectionErrorUnknown {
		return connErr
	}
	return err
}

// WrapAuthFlowError wraps OAuth flow failures into an AuthFailedError so
// commands exit with the auth-failed code. Other errors pass through
// unchanged.
func WrapAuthFlowError(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	if isFlowFailure(err) {
		return &AuthFailedError{Endpoint: endpoint, Reason: err}
	}
	return err
}

// isFlowFailure reports whether the error came out of an OAuth flow rather
// than the wire session.
func isFlowFailure(err error) bool {
	var authzErr *oauth.AuthorizationError
	var regErr *oauth.RegistrationError
	var deniedErr *oauth.DeviceFlowDeniedError
	var expiredErr *oauth.DeviceFlowExpiredError
	return errors.As(err, &authzErr) || errors.As(err, &regErr) ||
		errors.As(err, &deniedErr) || errors.As(err, &expiredErr)
}
