package cmd

import (
	"context"
	"strings"
	"time"

	"cleat/internal/cli"
	"cleat/internal/config"
	"cleat/internal/formatting"
	"cleat/internal/tokenstore"
	"cleat/pkg/logging"
	"cleat/pkg/oauth"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// statusProbeTimeout bounds the discovery probe per server so one dead
// endpoint cannot stall the whole report.
const statusProbeTimeout = 5 * time.Second

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the authentication status of every configured server.

For each server this reports whether a token is stored, when it expires,
and whether it can be refreshed without re-authenticating. Servers with
no stored token are probed concurrently to tell "not logged in yet" apart
from "unreachable". With --server or --endpoint only that server is shown.

Examples:
  cleat auth status                    # All configured servers
  cleat auth status -o wide            # Include endpoint URLs
  cleat auth status -o json            # Machine-readable output`,
	RunE: runAuthStatus,
}

func init() {
	cli.RegisterOutputFlags(authStatusCmd, &authFlags)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := authFlags.Format()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(&authFlags)
	if err != nil {
		return err
	}

	servers := cfg.Servers
	if authFlags.Server != "" || authFlags.Endpoint != "" {
		srv, err := cli.ResolveServer(cfg, &authFlags)
		if err != nil {
			return err
		}
		servers = []config.ServerConfig{srv}
	}

	store, err := tokenstore.NewStore(cfg.TokenDir)
	if err != nil {
		return err
	}

	client := oauth.NewClient(oauth.WithLogger(logging.Slog("OAuth")))

	statuses := make([]formatting.AuthStatus, len(servers))
	g, probeCtx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			statuses[i] = probeServer(probeCtx, client, store, srv)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return formatting.WriteAuthStatuses(cmd.OutOrStdout(), statuses, format, authFlags.NoHeaders)
}

// probeServer builds one server's status row. Rows for servers with a
// stored token come straight from the token file; only OAuth servers with
// no token hit the network, and then only for metadata discovery.
func probeServer(ctx context.Context, client *oauth.Client, store *tokenstore.Store, srv config.ServerConfig) formatting.AuthStatus {
	row := formatting.AuthStatus{Server: srv.Name, Endpoint: srv.URL}

	if !srv.Remote() || srv.Auth.Mode == config.AuthModeNone {
		row.State = formatting.StateNoAuth
		return row
	}

	if srv.Auth.Mode == config.AuthModeToken {
		row.State = formatting.StateAuthenticated
		return row
	}

	token, err := store.Load(srv.URL)
	if err == nil && token != nil {
		if exp := token.ExpiresAt(); !exp.IsZero() {
			row.ExpiresAt = &exp
		}
		row.Refreshable = token.Refreshable()
		if token.IsExpired(0) {
			row.State = formatting.StateExpired
		} else {
			row.State = formatting.StateAuthenticated
		}
		return row
	}

	// No stored token. A discovery probe distinguishes a server waiting for
	// login from one that is down; a failed probe may also mean the server
	// simply publishes no OAuth metadata, so the reason is reported rather
	// than guessed at.
	probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	if _, err := client.Discover(probeCtx, srv.URL); err != nil {
		row.State = formatting.StateError
		row.Error = probeFailureReason(err)
		return row
	}

	row.State = formatting.StateUnauthenticated
	return row
}

// probeFailureReason extracts a concise reason from a probe error.
// It removes verbose prefixes and presents the core issue.
func probeFailureReason(err error) string {
	if err == nil {
		return "unknown error"
	}

	errStr := err.Error()

	// TLS errors often have verbose prefixes like "Get https://...: x509: ..."
	if idx := strings.Index(errStr, "x509:"); idx != -1 {
		return strings.TrimSpace(errStr[idx:])
	}

	// For connection errors, extract the actual failure reason
	if idx := strings.Index(errStr, "connect:"); idx != -1 {
		return strings.TrimSpace(errStr[idx:])
	}

	if colonIdx := strings.LastIndex(errStr, ":"); strings.Contains(errStr, "dial tcp") && colonIdx != -1 {
		return strings.TrimSpace(errStr[colonIdx+1:])
	}

	return errStr
}
