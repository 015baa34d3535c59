// Package session manages MCP sessions against remote and local tool
// servers, so callers see ListTools and CallTool as plain, reliable calls.
//
// RemoteClient speaks streamable HTTP to a server that may require OAuth.
// It obtains a bearer token from a TokenSource before connecting, injects
// it at the transport layer, and recovers from a mid-session authorization
// failure by clearing the token and reconnecting exactly once. A second
// auth failure, or any non-auth error, propagates to the caller.
//
// LocalClient supervises a subprocess tool server over stdio. The child
// inherits the full parent environment, its stderr is captured into a
// per-server log file, and the advertised tool set can be narrowed by an
// allow-list. A call to a tool outside the filtered set fails before any
// wire traffic.
//
// Both clients share the Client interface, the typed error set in this
// package, and the Content sum type that wraps heterogeneous tool results.
package session
