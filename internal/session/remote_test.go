package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenSource hands out tokens from a fixed sequence. InvalidateToken
// advances to the next entry, which models a re-authentication producing a
// fresh token.
type fakeTokenSource struct {
	mu          sync.Mutex
	tokens      []string
	idx         int
	ensures     int
	invalidates int
	ensureErr   error
}

func (f *fakeTokenSource) EnsureToken(ctx context.Context, serverURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return f.tokens[f.idx], nil
}

func (f *fakeTokenSource) InvalidateToken(serverURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidates++
	if f.idx < len(f.tokens)-1 {
		f.idx++
	}
}

func (f *fakeTokenSource) counts() (ensures, invalidates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensures, f.invalidates
}

// bearerMiddleware rejects every request that does not carry the currently
// accepted bearer token, the way an OAuth-protected MCP server does.
type bearerMiddleware struct {
	handler http.Handler

	mu       sync.Mutex
	accepted string
	rejected int
}

func (m *bearerMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	ok := r.Header.Get("Authorization") == "Bearer "+m.accepted
	if !ok {
		m.rejected++
	}
	m.mu.Unlock()

	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="cleat-test"`)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorized"))
		return
	}
	m.handler.ServeHTTP(w, r)
}

func (m *bearerMiddleware) setAccepted(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = token
}

func (m *bearerMiddleware) rejections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}

func newSessionTestServer() *server.MCPServer {
	srv := server.NewMCPServer("session-test", "1.0.0",
		server.WithToolCapabilities(false),
	)
	srv.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo a message back"),
			mcp.WithString("message", mcp.Required(), mcp.Description("Message to echo")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			msg, _ := args["message"].(string)
			return mcp.NewToolResultText("echo: " + msg), nil
		},
	)
	srv.AddTool(
		mcp.NewTool("broken",
			mcp.WithDescription("Always reports an error"),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("it broke"), nil
		},
	)
	return srv
}

// newProtectedServer starts an MCP server behind bearer-token middleware
// and returns its /mcp endpoint.
func newProtectedServer(t *testing.T, accepted string) (*bearerMiddleware, string) {
	t.Helper()

	mw := &bearerMiddleware{
		handler:  server.NewStreamableHTTPServer(newSessionTestServer()),
		accepted: accepted,
	}
	ts := httptest.NewServer(mw)
	t.Cleanup(ts.Close)
	return mw, ts.URL + "/mcp"
}

func TestRemoteClientConnectAndCall(t *testing.T) {
	_, url := newProtectedServer(t, "tok-1")
	tokens := &fakeTokenSource{tokens: []string{"tok-1"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})
	defer c.Disconnect()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.Connected())

	// Connecting again is a no-op.
	require.NoError(t, c.Connect(ctx))
	ensures, _ := tokens.counts()
	assert.Equal(t, 1, ensures)

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "broken")

	contents, err := c.CallTool(ctx, "echo", map[string]interface{}{"message": "hi"})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(TextContent)
	require.True(t, ok)
	assert.Equal(t, "echo: hi", text.Text)

	assert.True(t, c.HealthCheck(ctx))

	require.NoError(t, c.Disconnect())
	assert.False(t, c.Connected())
	assert.False(t, c.HealthCheck(ctx))
}

func TestRemoteClientRequiresConnect(t *testing.T) {
	c := NewRemoteClient(RemoteClientConfig{URL: "http://localhost:0/mcp"})

	var notConnected *NotConnectedError
	_, err := c.ListTools(context.Background())
	require.Error(t, err)
	assert.True(t, errors.As(err, &notConnected))

	_, err = c.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)
	assert.True(t, errors.As(err, &notConnected))

	assert.False(t, c.HealthCheck(context.Background()))
}

func TestRemoteClientConnectRetriesOnStaleToken(t *testing.T) {
	mw, url := newProtectedServer(t, "tok-2")
	tokens := &fakeTokenSource{tokens: []string{"stale", "tok-2"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())

	ensures, invalidates := tokens.counts()
	assert.Equal(t, 2, ensures)
	assert.Equal(t, 1, invalidates)
	assert.GreaterOrEqual(t, mw.rejections(), 1)
}

func TestRemoteClientConnectFailsAfterSecondRejection(t *testing.T) {
	_, url := newProtectedServer(t, "never-issued")
	tokens := &fakeTokenSource{tokens: []string{"bad-1", "bad-2"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})

	err := c.Connect(context.Background())
	require.Error(t, err)

	var authErr *AuthenticationRequiredError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, url, authErr.Server)

	ensures, invalidates := tokens.counts()
	assert.Equal(t, 2, ensures)
	assert.Equal(t, 1, invalidates, "token must be cleared exactly once")
	assert.False(t, c.Connected())
}

func TestRemoteClientTokenAcquisitionFailure(t *testing.T) {
	_, url := newProtectedServer(t, "tok-1")
	tokens := &fakeTokenSource{ensureErr: fmt.Errorf("discovery unreachable")}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to obtain token")
	assert.Contains(t, err.Error(), url)
	assert.False(t, c.Connected())
}

func TestRemoteClientReauthenticatesMidSession(t *testing.T) {
	mw, url := newProtectedServer(t, "tok-1")
	tokens := &fakeTokenSource{tokens: []string{"tok-1", "tok-2"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})
	defer c.Disconnect()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	// The server starts rejecting the session's token, as it would after
	// a revocation. The next re-authentication yields tok-2.
	mw.setAccepted("tok-2")

	contents, err := c.CallTool(ctx, "echo", map[string]interface{}{"message": "back"})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "echo: back", contents[0].(TextContent).Text)

	ensures, invalidates := tokens.counts()
	assert.Equal(t, 2, ensures, "one connect plus one reconnect")
	assert.Equal(t, 1, invalidates, "token must be cleared exactly once")
	assert.True(t, c.Connected())
}

func TestRemoteClientPropagatesAfterOneRetry(t *testing.T) {
	mw, url := newProtectedServer(t, "tok-1")
	tokens := &fakeTokenSource{tokens: []string{"tok-1", "tok-2"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})
	defer c.Disconnect()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	// Nothing the token source can produce is acceptable anymore.
	mw.setAccepted("unobtainable")

	_, err := c.CallTool(ctx, "echo", map[string]interface{}{"message": "x"})
	require.Error(t, err)

	var authErr *AuthenticationRequiredError
	require.True(t, errors.As(err, &authErr), "got %v", err)

	ensures, invalidates := tokens.counts()
	assert.Equal(t, 2, ensures, "exactly one reconnect attempt")
	assert.Equal(t, 1, invalidates, "no second clear after the retry fails")
}

func TestRemoteClientListToolsReauthenticates(t *testing.T) {
	mw, url := newProtectedServer(t, "tok-1")
	tokens := &fakeTokenSource{tokens: []string{"tok-1", "tok-2"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})
	defer c.Disconnect()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	mw.setAccepted("tok-2")

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tools)

	_, invalidates := tokens.counts()
	assert.Equal(t, 1, invalidates)
}

func TestRemoteClientToolError(t *testing.T) {
	_, url := newProtectedServer(t, "tok-1")
	tokens := &fakeTokenSource{tokens: []string{"tok-1"}}
	c := NewRemoteClient(RemoteClientConfig{URL: url, Tokens: tokens})
	defer c.Disconnect()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.CallTool(ctx, "broken", nil)
	require.Error(t, err)

	var execErr *ToolExecutionError
	require.True(t, errors.As(err, &execErr), "got %v", err)
	assert.Equal(t, "broken", execErr.Tool)
	assert.Contains(t, execErr.Message, "it broke")

	// A tool-level error is not an auth failure and must not burn the
	// token.
	_, invalidates := tokens.counts()
	assert.Equal(t, 0, invalidates)
}

func TestRemoteClientWithoutTokenSource(t *testing.T) {
	t.Run("open server", func(t *testing.T) {
		ts := httptest.NewServer(server.NewStreamableHTTPServer(newSessionTestServer()))
		defer ts.Close()

		c := NewRemoteClient(RemoteClientConfig{URL: ts.URL + "/mcp"})
		defer c.Disconnect()

		require.NoError(t, c.Connect(context.Background()))
		assert.True(t, c.Connected())
	})

	t.Run("protected server", func(t *testing.T) {
		_, url := newProtectedServer(t, "tok-1")
		c := NewRemoteClient(RemoteClientConfig{URL: url})

		err := c.Connect(context.Background())
		require.Error(t, err)

		var authErr *AuthenticationRequiredError
		assert.True(t, errors.As(err, &authErr), "got %v", err)
	})
}
