package cli

import (
	"cleat/internal/formatting"

	"github.com/spf13/cobra"
)

// CommandFlags holds the common flag values used across CLI commands that talk
// to a tool server. This struct consolidates the repetitive flag pattern used
// by the auth, tools, and repl commands.
type CommandFlags struct {
	// Output specifies the desired output format (table, wide, json, yaml)
	Output string
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
	// Debug enables verbose diagnostic logging
	Debug bool
	// ConfigPath overrides the configuration file path
	ConfigPath string
	// Server selects a configured server by name
	Server string
	// Endpoint overrides the server endpoint URL, bypassing configuration
	Endpoint string
}

// RegisterOutputFlags registers the output formatting flags on a command.
//
// The registered flags are:
//   - --output/-o: Output format (table, wide, json, yaml), default: "table"
//   - --no-headers: Suppress header row in table output
func RegisterOutputFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "table", "Output format (table, wide, json, yaml)")
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
}

// RegisterConnectionFlags registers the flags that select which tool server a
// command talks to and how noisy it is while doing so. These are persistent
// so subcommands inherit them.
//
// The registered flags are:
//   - --server/-s: Configured server name
//   - --endpoint: Tool server endpoint URL, bypassing configuration
//     (env: CLEAT_ENDPOINT, applied when no servers are configured)
//   - --config: Configuration file path (env: CLEAT_CONFIG_PATH)
//   - --quiet/-q: Suppress non-essential output
//   - --debug: Enable debug logging
func RegisterConnectionFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.Server, "server", "s", "", "Configured server name")
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", "", "Tool server endpoint URL, bypassing configuration (env: CLEAT_ENDPOINT)")
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "Configuration file path (env: CLEAT_CONFIG_PATH)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
}

// Format validates the --output value and returns it as an OutputFormat.
func (f *CommandFlags) Format() (formatting.OutputFormat, error) {
	if f.Output == "" {
		return formatting.OutputFormatTable, nil
	}
	if err := formatting.ValidateOutputFormat(f.Output); err != nil {
		return "", err
	}
	return formatting.OutputFormat(f.Output), nil
}
