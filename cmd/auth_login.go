package cmd

import (
	"fmt"
	"io"
	"os"

	"cleat/internal/authflow"
	"cleat/internal/cli"
	"cleat/internal/config"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Login-specific flags
var loginDevice bool

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to a tool server",
	Long: `Authenticate to a tool server using OAuth.

This command discovers the server's authorization server, registers a
client if needed, and runs the browser-based authorization code flow. On
headless machines, or with --device, it runs the device flow instead and
prints a code to enter on another machine. The token is cached on disk
and reused by every other command.

Examples:
  cleat auth login                     # Login to the configured server
  cleat auth login --server <name>     # Login to a specific server
  cleat auth login --endpoint <url>    # Login to a specific endpoint
  cleat auth login --device            # Force the device flow`,
	RunE: runAuthLogin,
}

func init() {
	// Login-specific flags (only on login subcommand)
	authLoginCmd.Flags().BoolVar(&loginDevice, "device", false, "Use the device authorization flow instead of the browser")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(&authFlags)
	if err != nil {
		return err
	}

	srv, err := cli.ResolveServer(cfg, &authFlags)
	if err != nil {
		return err
	}

	if !srv.Remote() {
		return fmt.Errorf("server %q runs locally and does not use authentication", srv.Name)
	}

	switch srv.Auth.Mode {
	case config.AuthModeNone:
		return fmt.Errorf("server %q has authentication disabled", srv.Name)
	case config.AuthModeToken:
		authPrintln("Server uses a manually configured token; nothing to do.")
		return nil
	}

	out := io.Writer(os.Stdout)
	if authFlags.Quiet {
		out = io.Discard
	}

	opts := []authflow.Option{authflow.WithOutput(out)}
	if loginDevice {
		opts = append(opts, authflow.WithPreferDeviceFlow(true))
	}

	auth, err := cli.NewAuthenticator(cfg, srv, opts...)
	if err != nil {
		return err
	}

	token, err := auth.Login(ctx, srv.URL)
	if err != nil {
		return cli.WrapAuthFlowError(err, srv.URL)
	}

	authPrint("%s Authenticated to %s\n", text.FgGreen.Sprint("✓"), srv.URL)
	if exp := token.ExpiresAt(); !exp.IsZero() {
		authPrint("  Token expires %s\n", formatExpiryWithDirection(exp))
	}
	if token.Refreshable() {
		authPrintln("  Refresh token stored; renewal is automatic.")
	}
	return nil
}
