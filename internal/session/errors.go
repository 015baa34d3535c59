package session

import "fmt"

// NotConnectedError indicates an operation was attempted on a client that
// has no live session, either because Connect was never called or because
// the session has been torn down.
type NotConnectedError struct {
	Server string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("not connected to %s: call Connect before issuing requests", e.Server)
}

// ToolNotFoundError indicates a tool name the server does not expose, or
// one that the configured allow-list filtered out.
type ToolNotFoundError struct {
	Tool   string
	Server string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not available on %s: check the tool name and the server's allow-list", e.Tool, e.Server)
}

// ToolExecutionError indicates a tool that was reached and ran, but
// reported a failure.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// AuthenticationRequiredError indicates the server rejected the session's
// credentials and a fresh login is needed. The remote client raises it
// after its single reauthentication retry has been exhausted; the local
// client raises it when a tool result carries a structured
// authentication_required payload.
type AuthenticationRequiredError struct {
	Server string
	Reason string
}

func (e *AuthenticationRequiredError) Error() string {
	msg := fmt.Sprintf("authentication required for %s", e.Server)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg + " (run 'cleat auth login' to authenticate)"
}
