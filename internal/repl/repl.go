// Package repl is the interactive shell for one tool-server session. It
// wraps readline with history, tab completion for tool names, and a small
// command set: tools, call, status, help, exit.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cleat/internal/cli"
	"cleat/internal/config"
	"cleat/internal/formatting"
	"cleat/internal/session"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/mcp"
)

// commandTimeout bounds a single command so a hung tool call cannot wedge
// the loop.
const commandTimeout = 5 * time.Minute

// maxServerLabelLength caps the server name shown in the prompt. Longer
// names keep their start and end so similar names stay distinguishable.
const maxServerLabelLength = 28

// errExit signals a clean exit out of the command dispatch.
var errExit = errors.New("exit")

// REPL drives the interactive loop over an already connected session.
type REPL struct {
	server config.ServerConfig
	client session.Client
	out    io.Writer

	rl         *readline.Instance
	tools      []mcp.Tool
	useUnicode bool
}

// New creates a REPL for the given server and connected session client.
// Output goes to out, which is stdout in normal use.
func New(server config.ServerConfig, client session.Client, out io.Writer) *REPL {
	return &REPL{
		server:     server,
		client:     client,
		out:        out,
		useUnicode: detectUnicodeSupport(),
	}
}

// detectUnicodeSupport checks if the terminal likely supports unicode
// characters. Dumb terminals and empty TERM read as no.
func detectUnicodeSupport() bool {
	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}

	for _, v := range []string{os.Getenv("LANG"), os.Getenv("LC_ALL")} {
		lower := strings.ToLower(v)
		if strings.Contains(lower, "utf-8") || strings.Contains(lower, "utf8") {
			return true
		}
	}

	return true
}

// prompt builds the readline prompt: the server name and a chevron, e.g.
// "ops » ". Falls back to ASCII when the terminal has no unicode.
func (r *REPL) prompt() string {
	chevron := ">"
	if r.useUnicode {
		chevron = "»"
	}
	return serverLabel(r.server.Name) + " " + chevron + " "
}

// serverLabel truncates long server names, keeping the start and the end so
// names that differ only in a suffix remain tellable apart.
func serverLabel(name string) string {
	if len(name) <= maxServerLabelLength {
		return name
	}

	ellipsis := "..."
	available := maxServerLabelLength - len(ellipsis)
	startLen := (available * 3) / 5
	endLen := available - startLen

	return name[:startLen] + ellipsis + name[len(name)-endLen:]
}

// Run enters the interaction loop and blocks until exit, EOF, or context
// cancellation. The session must already be connected.
func (r *REPL) Run(ctx context.Context) error {
	r.refreshTools(ctx)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              r.prompt(),
		HistoryFile:         filepath.Join(os.TempDir(), ".cleat_history"),
		AutoComplete:        r.completer(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	fmt.Fprintf(r.out, "Connected to %s. Type 'help' for available commands. Use TAB for completion.\n\n", r.server.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.execute(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				fmt.Fprintln(r.out, "Goodbye!")
				return nil
			}
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}

		fmt.Fprintln(r.out)
	}
}

// execute parses and dispatches one input line.
func (r *REPL) execute(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	args := parts[1:]

	if name == "?" {
		name = "help"
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch name {
	case "help":
		r.help()
		return nil
	case "tools", "list":
		return r.listTools(cmdCtx)
	case "describe":
		return r.describeTool(cmdCtx, args)
	case "call", "run":
		return r.callTool(cmdCtx, args)
	case "status":
		r.status(cmdCtx)
		return nil
	case "exit", "quit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", parts[0])
	}
}

func (r *REPL) help() {
	fmt.Fprint(r.out, `Available commands:
  tools                      List the tools the server exposes
  describe <tool>            Show a tool's description and input schema
  call <tool> [key=value]... Execute a tool; values may be JSON
  call <tool> {json}         Execute a tool with a JSON argument object
  status                     Show connection health
  help                       Show this help
  exit                       Leave the shell
`)
}

// listTools fetches and prints the tool list, refreshing tab completion as
// a side effect so new tools complete immediately.
func (r *REPL) listTools(ctx context.Context) error {
	tools, err := r.client.ListTools(ctx)
	if err != nil {
		return err
	}

	r.tools = tools
	if r.rl != nil {
		r.rl.Config.AutoComplete = r.completer()
	}

	return formatting.WriteTools(r.out, tools, formatting.OutputFormatTable, false)
}

// describeTool prints one tool's full schema. The cached list is consulted
// first and refetched once on a miss, so a freshly added tool resolves
// without an explicit tools command.
func (r *REPL) describeTool(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: describe <tool>")
	}
	name := args[0]

	tool, ok := r.findTool(name)
	if !ok {
		tools, err := r.client.ListTools(ctx)
		if err != nil {
			return err
		}
		r.tools = tools
		if tool, ok = r.findTool(name); !ok {
			return fmt.Errorf("tool %q not found. Run 'tools' to see what the server exposes", name)
		}
	}

	return formatting.WriteToolDetail(r.out, tool, formatting.OutputFormatTable)
}

func (r *REPL) findTool(name string) (mcp.Tool, bool) {
	for _, tool := range r.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return mcp.Tool{}, false
}

// callTool executes a tool named by the first argument. Remaining arguments
// are key=value pairs, or a single JSON object when the remainder starts
// with a brace.
func (r *REPL) callTool(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: call <tool> [key=value]...")
	}

	toolName := args[0]
	rest := args[1:]

	var toolArgs map[string]interface{}
	var err error
	if len(rest) > 0 && strings.HasPrefix(rest[0], "{") {
		toolArgs, err = cli.ParseToolArgsJSON(strings.Join(rest, " "))
	} else {
		toolArgs, err = cli.ParseToolArgs(rest)
	}
	if err != nil {
		return err
	}

	contents, err := r.client.CallTool(ctx, toolName, toolArgs)
	if err != nil {
		return err
	}

	return formatting.WriteCallResult(r.out, contents, formatting.OutputFormatTable)
}

// status prints connection and liveness state for the session.
func (r *REPL) status(ctx context.Context) {
	target := r.server.URL
	if !r.server.Remote() {
		target = r.server.Command
	}

	fmt.Fprintf(r.out, "Server:    %s\n", r.server.Name)
	fmt.Fprintf(r.out, "Target:    %s\n", target)
	fmt.Fprintf(r.out, "Connected: %s\n", yesNo(r.client.Connected()))
	fmt.Fprintf(r.out, "Healthy:   %s\n", yesNo(r.client.HealthCheck(ctx)))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// refreshTools loads the tool list for completion, ignoring failures: the
// list command surfaces them when it matters.
func (r *REPL) refreshTools(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tools, err := r.client.ListTools(listCtx)
	if err != nil {
		return
	}
	r.tools = tools
}

// completer builds tab completion: static commands plus the cached tool
// names under call.
func (r *REPL) completer() *readline.PrefixCompleter {
	toolItems := make([]readline.PrefixCompleterInterface, len(r.tools))
	for i, tool := range r.tools {
		toolItems[i] = readline.PcItem(tool.Name)
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("tools"),
		readline.PcItem("list"),
		readline.PcItem("describe", toolItems...),
		readline.PcItem("call", toolItems...),
		readline.PcItem("run", toolItems...),
		readline.PcItem("status"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

// filterInput blocks control characters that would corrupt the line editor.
func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}
