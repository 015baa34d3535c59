package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cleat/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// RemoteClientConfig configures a RemoteClient.
type RemoteClientConfig struct {
	// URL is the streamable HTTP endpoint of the tool server.
	URL string

	// Tokens supplies bearer tokens for the server. Nil means the server
	// is called without credentials.
	Tokens TokenSource

	// Headers are additional HTTP headers sent with every request.
	Headers map[string]string

	// HTTPClient overrides the transport's HTTP client, for custom TLS
	// or test servers.
	HTTPClient *http.Client

	// Timeout bounds each wire operation. Zero means
	// DefaultRequestTimeout.
	Timeout time.Duration
}

// RemoteClient is an MCP session against a remote tool server over
// streamable HTTP. It obtains a bearer token before connecting and
// recovers from a mid-session authorization failure by clearing the token
// and reconnecting exactly once.
//
// One mutex serializes connect, disconnect, and calls, so an operation
// never observes a half-built session or a token mid-replacement.
type RemoteClient struct {
	url        string
	tokens     TokenSource
	headers    map[string]string
	httpClient *http.Client
	timeout    time.Duration

	mu        sync.Mutex
	client    *client.Client
	connected bool
	sessionID string
}

// NewRemoteClient creates a client for the given endpoint. The session is
// not opened until Connect.
func NewRemoteClient(cfg RemoteClientConfig) *RemoteClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RemoteClient{
		url:        cfg.URL,
		tokens:     cfg.Tokens,
		headers:    cfg.Headers,
		httpClient: cfg.HTTPClient,
		timeout:    timeout,
	}
}

// URL returns the endpoint this client talks to.
func (c *RemoteClient) URL() string {
	return c.url
}

// Connect ensures a valid token, opens the wire session, and performs the
// protocol handshake. An authorization failure triggers exactly one
// token-clear-and-retry; a second failure, or any non-auth error,
// propagates.
func (c *RemoteClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	return c.connectLocked(ctx, true)
}

func (c *RemoteClient) connectLocked(ctx context.Context, retryAuth bool) error {
	headers := make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		headers[k] = v
	}

	if c.tokens != nil {
		token, err := c.tokens.EnsureToken(ctx, c.url)
		if err != nil {
			return fmt.Errorf("failed to obtain token for %s: %w", c.url, err)
		}
		headers["Authorization"] = "Bearer " + token
	}

	var opts []transport.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPBasicClient(c.httpClient))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to create streamable HTTP client for %s: %w", c.url, err)
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
		cleanupStatus := c.closeAbandoned(mcpClient)

		if IsAuthFailure(err) {
			if retryAuth && c.tokens != nil {
				logging.Info("Session", "Authorization rejected by %s, re-authenticating", c.url)
				c.tokens.InvalidateToken(c.url)
				return c.connectLocked(ctx, false)
			}
			logging.Audit(logging.AuditEvent{
				Action:  "session_connect",
				Outcome: "failure",
				Target:  c.url,
			})
			return &AuthenticationRequiredError{Server: c.url, Reason: err.Error()}
		}
		if cleanupStatus != 0 {
			return fmt.Errorf("failed to initialize session with %s (HTTP %d during cleanup): %w", c.url, cleanupStatus, err)
		}
		return fmt.Errorf("failed to initialize session with %s: %w", c.url, err)
	}

	c.client = mcpClient
	c.connected = true
	c.sessionID = uuid.New().String()

	shortID := logging.TruncateSessionID(c.sessionID)
	logging.Debug("Session", "Connected to %s (server: %s %s, session: %s)",
		c.url, initResult.ServerInfo.Name, initResult.ServerInfo.Version, shortID)
	logging.Audit(logging.AuditEvent{
		Action:    "session_connect",
		Outcome:   "success",
		SessionID: shortID,
		Target:    c.url,
	})
	return nil
}

// closeAbandoned closes a session handle that never became usable. Close
// errors are suppressed, but an HTTP status found in one is reported back
// so the caller's error can carry it.
func (c *RemoteClient) closeAbandoned(mcpClient *client.Client) int {
	err := mcpClient.Close()
	if err == nil {
		return 0
	}
	logging.Debug("Session", "Ignoring cleanup error for %s: %v", c.url, err)
	status, _ := HTTPStatusFromError(err)
	return status
}

// Disconnect unwinds the session. Cleanup errors are logged and
// suppressed.
func (c *RemoteClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnectLocked()
	return nil
}

func (c *RemoteClient) disconnectLocked() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			if status, ok := HTTPStatusFromError(err); ok {
				logging.Debug("Session", "Ignoring HTTP %d while closing session to %s", status, c.url)
			} else {
				logging.Debug("Session", "Ignoring close error for %s: %v", c.url, err)
			}
		}
		c.client = nil
	}
	c.connected = false
	c.sessionID = ""
}

// Connected reports whether the client holds a live session.
func (c *RemoteClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ListTools returns the tools the server advertises.
func (c *RemoteClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, &NotConnectedError{Server: c.url}
	}

	var tools []mcp.Tool
	err := c.withReauthLocked(ctx, "tool listing", func(ctx context.Context) error {
		result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return err
		}
		tools = result.Tools
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tools, nil
}

// CallTool invokes a tool and returns its unpacked result contents. A
// result flagged as an error becomes a ToolExecutionError.
func (c *RemoteClient) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, &NotConnectedError{Server: c.url}
	}

	var result *mcp.CallToolResult
	err := c.withReauthLocked(ctx, "tool call", func(ctx context.Context) error {
		res, err := c.client.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      name,
				Arguments: args,
			},
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.IsError {
		return nil, &ToolExecutionError{Tool: name, Message: resultErrorMessage(result)}
	}
	return ContentsFromResult(result), nil
}

// HealthCheck reports whether the server answers a ping. Any failure,
// including not being connected, reads as unhealthy.
func (c *RemoteClient) HealthCheck(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.client.Ping(pingCtx); err != nil {
		logging.Debug("Session", "Health check failed for %s: %v", c.url, err)
		return false
	}
	return true
}

// withReauthLocked runs one wire operation under the per-call timeout.
// When the operation fails with an authorization failure, it clears the
// token, rebuilds the session on a fresh handle, and reruns the operation
// once. The operation reads c.client at execution time so the rerun sees
// the new handle.
func (c *RemoteClient) withReauthLocked(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(opCtx)
	if err == nil || !IsAuthFailure(err) {
		return err
	}
	if c.tokens == nil {
		return &AuthenticationRequiredError{Server: c.url, Reason: err.Error()}
	}

	logging.Info("Session", "Authorization rejected during %s by %s (session: %s), re-authenticating",
		op, c.url, logging.TruncateSessionID(c.sessionID))
	c.tokens.InvalidateToken(c.url)
	c.disconnectLocked()

	if err := c.connectLocked(ctx, false); err != nil {
		return fmt.Errorf("%s failed after re-authentication: %w", op, err)
	}

	retryCtx, retryCancel := context.WithTimeout(ctx, c.timeout)
	defer retryCancel()

	if err := fn(retryCtx); err != nil {
		if IsAuthFailure(err) {
			return &AuthenticationRequiredError{Server: c.url, Reason: err.Error()}
		}
		return fmt.Errorf("%s failed after re-authentication: %w", op, err)
	}
	return nil
}
