package session

import (
	"context"
	"time"

	"cleat/internal/authflow"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// DefaultRequestTimeout bounds a single wire operation (initialize,
	// list, call) when the caller's context carries no tighter deadline.
	DefaultRequestTimeout = 30 * time.Second

	// healthCheckTimeout bounds the best-effort ping so a hung server
	// reads as unhealthy instead of blocking the caller.
	healthCheckTimeout = 5 * time.Second
)

// TokenSource supplies bearer tokens for tool servers and accepts
// invalidation when a server rejects one.
type TokenSource interface {
	// EnsureToken returns a usable access token for the server,
	// running whatever acquisition or refresh is needed.
	EnsureToken(ctx context.Context, serverURL string) (string, error)

	// InvalidateToken drops any cached and persisted token for the
	// server so the next EnsureToken starts over.
	InvalidateToken(serverURL string)
}

// Client is the common surface of remote and local tool-server sessions.
type Client interface {
	// Connect establishes the session and performs the protocol
	// handshake. Connecting an already connected client is a no-op.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Cleanup errors are suppressed.
	Disconnect() error

	// ListTools returns the tools the session exposes.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool invokes a tool and returns its unpacked result contents.
	CallTool(ctx context.Context, name string, args map[string]interface{}) ([]Content, error)

	// HealthCheck reports whether the server currently answers. It is
	// best effort and never returns an error.
	HealthCheck(ctx context.Context) bool

	// Connected reports whether the client holds a live session.
	Connected() bool
}

var (
	_ Client      = (*RemoteClient)(nil)
	_ Client      = (*LocalClient)(nil)
	_ TokenSource = (*authflow.Authenticator)(nil)
)
