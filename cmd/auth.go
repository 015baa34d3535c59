package cmd

import (
	"fmt"
	"os"

	"cleat/internal/cli"
	"cleat/internal/tokenstore"

	"github.com/spf13/cobra"
)

var authFlags cli.CommandFlags

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for tool servers",
	Long: `Manage authentication for cleat commands.

The auth command group provides subcommands to login, logout, check status,
and refresh OAuth tokens for tool servers that require authentication.

Examples:
  cleat auth login                     # Login to the configured server
  cleat auth login --endpoint <url>    # Login to a specific endpoint
  cleat auth status                    # Show authentication status
  cleat auth logout                    # Logout from the configured server
  cleat auth logout --all              # Clear all stored tokens
  cleat auth refresh                   # Force token refresh`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored authentication tokens",
	Long: `Clear stored OAuth tokens.

This command removes cached tokens, requiring re-authentication on the
next connection to protected servers.

Examples:
  cleat auth logout                    # Logout from the configured server
  cleat auth logout --server <name>    # Logout from a specific server
  cleat auth logout --all              # Clear all stored tokens
  cleat auth logout --all --yes        # Clear all without confirmation`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force token refresh",
	Long: `Force a refresh of the stored OAuth token.

This command exchanges the refresh token for a new access token, which
can be useful when a server starts rejecting an otherwise unexpired one.

Examples:
  cleat auth refresh                   # Refresh the configured server's token
  cleat auth refresh --server <name>   # Refresh a specific server's token`,
	RunE: runAuthRefresh,
}

// Logout-specific flags
var (
	logoutAll bool
	logoutYes bool
)

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(format string, args ...interface{}) {
	if !authFlags.Quiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !authFlags.Quiet {
		fmt.Println(a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)

	// Common flags shared across the auth subcommands
	cli.RegisterConnectionFlags(authCmd, &authFlags)

	// Logout-specific flags (only on logout subcommand)
	authLogoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Clear all stored tokens")
	authLogoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "Skip confirmation prompt for --all")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(&authFlags)
	if err != nil {
		return err
	}

	store, err := tokenstore.NewStore(cfg.TokenDir)
	if err != nil {
		return err
	}

	if logoutAll {
		return clearAllTokens(store)
	}

	srv, err := cli.ResolveServer(cfg, &authFlags)
	if err != nil {
		return err
	}
	if !srv.Remote() {
		return fmt.Errorf("server %q runs locally and has no stored token", srv.Name)
	}

	if err := store.Delete(srv.URL); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	authPrint("Logged out from %s\n", srv.URL)
	return nil
}

// clearAllTokens removes every stored token, listing them and asking for
// confirmation unless --yes was given.
func clearAllTokens(store *tokenstore.Store) error {
	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list stored tokens: %w", err)
	}

	if len(entries) == 0 {
		authPrintln("No stored tokens to clear.")
		return nil
	}

	if !logoutYes {
		fmt.Printf("The following %d token(s) will be cleared:\n", len(entries))
		for _, entry := range entries {
			fmt.Printf("  - %s\n", entry.ServerURL)
		}
		fmt.Println()

		if !cli.Confirm(os.Stdin, os.Stdout, "Are you sure you want to clear all tokens?", false) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	removed, err := store.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear all tokens: %w", err)
	}

	authPrint("Cleared %d stored token(s).\n", removed)
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("server %q runs locally and has no token to refresh", srv.Name)
	}

	auth, err := cli.NewAuthenticator(cfg, srv)
	if err != nil {
		return err
	}

	authPrint("Refreshing token for %s...\n", srv.URL)
	token, err := auth.RefreshNow(ctx, srv.URL)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	authPrintln("Token refreshed successfully.")
	if exp := token.ExpiresAt(); !exp.IsZero() {
		authPrint("  New expiry %s\n", formatExpiryWithDirection(exp))
	}
	return nil
}
