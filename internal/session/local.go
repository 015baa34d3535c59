package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"cleat/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// drainGrace bounds how long Disconnect waits for the stderr drain to see
// the subprocess pipe close before the log file is shut.
const drainGrace = 2 * time.Second

// LocalClientConfig configures a LocalClient.
type LocalClientConfig struct {
	// Name identifies the server in logs and errors; it also names the
	// subprocess log file.
	Name string

	// Command and Args launch the tool-server subprocess.
	Command string
	Args    []string

	// Env holds additional environment variables for the subprocess. The
	// child always inherits the parent's full environment; these are laid
	// on top.
	Env map[string]string

	// AllowedTools restricts the usable tool set to the listed names.
	// Empty means every tool the server advertises.
	AllowedTools []string

	// LogDir receives the subprocess stderr log ({Name}.log). Empty
	// disables capture; stderr is still drained so the child never
	// blocks on a full pipe.
	LogDir string

	// Timeout bounds each wire operation. Zero means
	// DefaultRequestTimeout.
	Timeout time.Duration
}

// LocalClient is an MCP session against a subprocess tool server over
// stdio. The client owns the subprocess exclusively: Connect starts it,
// Disconnect stops it, and its stderr is captured into a per-server log
// file that is opened lazily on first output.
type LocalClient struct {
	name    string
	command string
	args    []string
	env     map[string]string
	allowed []string
	logDir  string
	timeout time.Duration

	mu        sync.Mutex
	client    *client.Client
	connected bool
	sessionID string
	tools     map[string]mcp.Tool
	drainDone chan struct{}

	logMu     sync.Mutex
	logFile   *os.File
	logClosed bool
	logFailed bool
}

// NewLocalClient creates a client for the given subprocess command. The
// subprocess is not started until Connect.
func NewLocalClient(cfg LocalClientConfig) *LocalClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &LocalClient{
		name:    cfg.Name,
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		allowed: cfg.AllowedTools,
		logDir:  cfg.LogDir,
		timeout: timeout,
	}
}

// Name returns the configured server name.
func (c *LocalClient) Name() string {
	return c.name
}

// Connect starts the subprocess, performs the protocol handshake, lists
// the server's tools, and intersects them with the allow-list. An
// allow-listed name the server does not expose is warned about and
// skipped.
func (c *LocalClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("Session", "Starting tool server %s: %s %v", c.name, c.command, c.args)

	var envStrings []string
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("failed to start tool server %s: %w", c.name, err)
	}

	c.logMu.Lock()
	c.logClosed = false
	c.logFailed = false
	c.logMu.Unlock()

	if stderr, ok := client.GetStderr(mcpClient); ok {
		done := make(chan struct{})
		c.drainDone = done
		go func() {
			defer close(done)
			c.drainStderr(stderr)
		}()
	}

	initCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	initResult, err := mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "cleat",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		c.abortConnectLocked(mcpClient)
		return fmt.Errorf("failed to initialize tool server %s: %w", c.name, err)
	}

	listResult, err := mcpClient.ListTools(initCtx, mcp.ListToolsRequest{})
	if err != nil {
		c.abortConnectLocked(mcpClient)
		return fmt.Errorf("failed to list tools on %s: %w", c.name, err)
	}

	available := make(map[string]mcp.Tool, len(listResult.Tools))
	for _, tool := range listResult.Tools {
		available[tool.Name] = tool
	}

	if len(c.allowed) > 0 {
		filtered := make(map[string]mcp.Tool, len(c.allowed))
		for _, name := range c.allowed {
			tool, ok := available[name]
			if !ok {
				logging.Warn("Session", "Allow-listed tool %q is not exposed by %s", name, c.name)
				continue
			}
			filtered[name] = tool
		}
		c.tools = filtered
	} else {
		c.tools = available
	}

	c.client = mcpClient
	c.connected = true
	c.sessionID = uuid.New().String()

	logging.Debug("Session", "Tool server %s ready (server: %s %s, %d of %d tools usable, session: %s)",
		c.name, initResult.ServerInfo.Name, initResult.ServerInfo.Version,
		len(c.tools), len(available), logging.TruncateSessionID(c.sessionID))
	return nil
}

// abortConnectLocked tears down a subprocess whose handshake failed.
func (c *LocalClient) abortConnectLocked(mcpClient *client.Client) {
	if err := mcpClient.Close(); err != nil {
		logging.Debug("Session", "Ignoring close error for %s: %v", c.name, err)
	}
	c.waitDrainLocked()
	c.closeLog()
}

// Disconnect stops the subprocess and always closes the diagnostic log
// handle. Cleanup errors are logged and suppressed.
func (c *LocalClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnectLocked()
	return nil
}

func (c *LocalClient) disconnectLocked() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			logging.Debug("Session", "Ignoring close error for %s: %v", c.name, err)
		}
		c.client = nil
	}
	c.connected = false
	c.sessionID = ""
	c.tools = nil
	c.waitDrainLocked()
	c.closeLog()
}

// waitDrainLocked waits for the stderr drain to observe the pipe closing,
// bounded in case the subprocess never exits.
func (c *LocalClient) waitDrainLocked() {
	if c.drainDone == nil {
		return
	}
	select {
	case <-c.drainDone:
	case <-time.After(drainGrace):
		logging.Debug("Session", "Stderr drain for %s did not finish in time", c.name)
	}
	c.drainDone = nil
}

// Connected reports whether the subprocess session is live.
func (c *LocalClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ListTools returns the allow-list-filtered tool set, sorted by name.
func (c *LocalClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, &NotConnectedError{Server: c.name}
	}

	tools := make([]mcp.Tool, 0, len(c.tools))
	for _, tool := range c.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// CallTool invokes a tool on the subprocess. A name outside a non-empty
// allow-list fails before any wire traffic, even before Connect.
func (c *LocalClient) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.allowed) > 0 && !slices.Contains(c.allowed, name) {
		return nil, &ToolNotFoundError{Tool: name, Server: c.name}
	}
	if !c.connected {
		return nil, &NotConnectedError{Server: c.name}
	}
	if _, ok := c.tools[name]; !ok {
		return nil, &ToolNotFoundError{Tool: name, Server: c.name}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s failed on %s: %w", name, c.name, err)
	}

	if err := c.interpretResult(name, result); err != nil {
		return nil, err
	}
	return ContentsFromResult(result), nil
}

// interpretResult maps structured failure payloads onto typed errors.
// Local tool servers report failures as a single JSON text item of the
// form {"error": "...", ...}; an authentication_required error means the
// tool needs credentials this session does not hold.
func (c *LocalClient) interpretResult(tool string, result *mcp.CallToolResult) error {
	if text := FirstText(result); text != "" {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err == nil && payload.Error != "" {
			if payload.Error == "authentication_required" {
				return &AuthenticationRequiredError{Server: c.name, Reason: payload.Message}
			}
			msg := payload.Error
			if payload.Message != "" {
				msg += ": " + payload.Message
			}
			return &ToolExecutionError{Tool: tool, Message: msg}
		}
	}
	if result.IsError {
		return &ToolExecutionError{Tool: tool, Message: resultErrorMessage(result)}
	}
	return nil
}

// HealthCheck reports whether the subprocess answers a ping. Any failure
// reads as unhealthy.
func (c *LocalClient) HealthCheck(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.client.Ping(pingCtx); err != nil {
		logging.Debug("Session", "Health check failed for %s: %v", c.name, err)
		return false
	}
	return true
}

func (c *LocalClient) drainStderr(stderr io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			c.appendLog(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// appendLog writes subprocess stderr to the per-server log file, opening
// it on first output.
func (c *LocalClient) appendLog(p []byte) {
	c.logMu.Lock()
	defer c.logMu.Unlock()

	if c.logDir == "" || c.logClosed || c.logFailed {
		return
	}
	if c.logFile == nil {
		if err := os.MkdirAll(c.logDir, 0755); err != nil {
			logging.Warn("Session", "Cannot create log directory for %s: %v", c.name, err)
			c.logFailed = true
			return
		}
		path := filepath.Join(c.logDir, c.name+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			logging.Warn("Session", "Cannot open subprocess log for %s: %v", c.name, err)
			c.logFailed = true
			return
		}
		logging.Debug("Session", "Capturing %s stderr to %s", c.name, path)
		c.logFile = f
	}
	if _, err := c.logFile.Write(p); err != nil {
		logging.Warn("Session", "Failed writing subprocess log for %s: %v", c.name, err)
	}
}

func (c *LocalClient) closeLog() {
	c.logMu.Lock()
	defer c.logMu.Unlock()

	c.logClosed = true
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			logging.Debug("Session", "Ignoring log close error for %s: %v", c.name, err)
		}
		c.logFile = nil
	}
}
