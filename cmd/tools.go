package cmd

import (
	"fmt"

	"cleat/internal/cli"
	"cleat/internal/formatting"

	"github.com/spf13/cobra"
)

var toolsFlags cli.CommandFlags

// toolsCmd represents the tools command group
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and call tools on a server",
	Long: `List and call tools exposed by a tool server.

These commands connect to the target server, authenticating transparently
when it requires OAuth, and work against both remote (HTTP) and local
(stdio subprocess) servers.

Examples:
  cleat tools list                     # List tools on the configured server
  cleat tools list -o wide             # Include argument names
  cleat tools call sum --arg a=1 --arg b=2
  cleat tools call deploy --args-json '{"env": "prod", "replicas": 3}'`,
}

// toolsListCmd represents the tools list command
var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools a server exposes",
	Long: `List the tools a server exposes.

The wide format adds each tool's argument names; json and yaml emit the
full input schemas.`,
	RunE: runToolsList,
}

// Call-specific flags
var (
	callArgPairs []string
	callArgsJSON string
)

// toolsCallCmd represents the tools call command
var toolsCallCmd = &cobra.Command{
	Use:   "call NAME",
	Short: "Call a tool and print the result",
	Long: `Call a tool by name and print the result.

Arguments are passed as repeated --arg key=value flags, where values that
parse as JSON keep their type (numbers, booleans, arrays), or as one JSON
object via --args-json.

Examples:
  cleat tools call sum --arg a=1 --arg b=2
  cleat tools call search --arg 'query=latency p99'
  cleat tools call deploy --args-json '{"env": "prod", "dry_run": true}'`,
	Args: cobra.ExactArgs(1),
	RunE: runToolsCall,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)

	cli.RegisterConnectionFlags(toolsCmd, &toolsFlags)
	cli.RegisterOutputFlags(toolsListCmd, &toolsFlags)
	cli.RegisterOutputFlags(toolsCallCmd, &toolsFlags)

	toolsCallCmd.Flags().StringArrayVar(&callArgPairs, "arg", nil, "Tool argument as key=value; repeatable, values may be JSON")
	toolsCallCmd.Flags().StringVar(&callArgsJSON, "args-json", "", "Tool arguments as a JSON object")
}

func runToolsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := toolsFlags.Format()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(&toolsFlags)
	if err != nil {
		return err
	}

	conn, err := cli.Dial(ctx, cfg, &toolsFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	tools, err := conn.Client.ListTools(ctx)
	if err != nil {
		return err
	}

	return formatting.WriteTools(cmd.OutOrStdout(), tools, format, toolsFlags.NoHeaders)
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := toolsFlags.Format()
	if err != nil {
		return err
	}

	toolArgs, err := resolveCallArgs()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(&toolsFlags)
	if err != nil {
		return err
	}

	conn, err := cli.Dial(ctx, cfg, &toolsFlags)
	if err != nil {
		return err
	}
	defer conn.Close()

	contents, err := conn.Client.CallTool(ctx, args[0], toolArgs)
	if err != nil {
		return err
	}

	return formatting.WriteCallResult(cmd.OutOrStdout(), contents, format)
}

// resolveCallArgs parses tool arguments from whichever flag was used.
// --arg and --args-json are mutually exclusive.
func resolveCallArgs() (map[string]interface{}, error) {
	if callArgsJSON != "" && len(callArgPairs) > 0 {
		return nil, fmt.Errorf("only one of --arg and --args-json may be used")
	}
	if callArgsJSON != "" {
		return cli.ParseToolArgsJSON(callArgsJSON)
	}
	return cli.ParseToolArgs(callArgPairs)
}
