package cmd

import (
	"cleat/internal/cli"
	"cleat/internal/repl"

	"github.com/spf13/cobra"
)

var replFlags cli.CommandFlags

// replCmd represents the repl command
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Open an interactive shell on a server",
	Long: `Open an interactive shell on a tool server.

The shell connects once, then lets you list, inspect, and call tools
without re-dialing between commands. Tool names tab-complete and history
persists across sessions.

Examples:
  cleat repl                           # Shell on the configured server
  cleat repl --server <name>           # Shell on a specific server`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
	cli.RegisterConnectionFlags(replCmd, &replFlags)
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(&replFlags)
	if err != nil {
		return err
	}

	conn, err := cli.Dial(ctx, cfg, &replFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The shell may outlive its token. Watching the token directory picks
	// up a login or logout done from another terminal mid-session.
	if conn.Auth != nil {
		if w, err := conn.Auth.WatchStore(); err == nil {
			defer w.Stop()
		}
	}

	return repl.New(conn.Server, conn.Client, cmd.OutOrStdout()).Run(ctx)
}
