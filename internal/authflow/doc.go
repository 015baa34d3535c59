// Package authflow orchestrates interactive OAuth authentication for tool
// servers: the browser-based PKCE authorization-code flow with a local
// callback listener, and the headless device-authorization flow.
//
// The central type is Authenticator, which owns the decision sequence for
// producing a usable access token:
//
//  1. A manually configured token is used verbatim (OAuth disabled).
//  2. Server capabilities are discovered once and cached for the process.
//  3. A persisted token is loaded, refreshed if it is expired but
//     refreshable, and a failed refresh drops the stored token.
//  4. Only then is an interactive flow run: the device flow when preferred
//     and supported by the server, the code flow otherwise.
//  5. The resulting token is persisted; a persistence failure is logged but
//     does not fail the authentication.
//
// The Authenticator serializes token acquisition per instance, so a caller
// never observes a half-refreshed token.
package authflow
