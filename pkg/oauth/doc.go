// Package oauth implements the OAuth 2.1 client protocol surface used by
// cleat to authenticate against MCP servers.
//
// This package contains the pure protocol pieces: metadata discovery, dynamic
// client registration, PKCE generation, token exchange and refresh, and
// device-authorization polling. It performs no persistence and opens no
// browsers; the interactive flows live in internal/authflow and token storage
// in internal/tokenstore.
//
// # Core Components
//
//   - TokenSet: OAuth token representation with expiry checking
//   - Config: the per-server capability descriptor produced by two-step discovery
//     (RFC 9728 protected resource metadata, then RFC 8414 authorization server
//     metadata with an OpenID Connect fallback)
//   - Client: OAuth client for discovery, registration (RFC 7591), token
//     exchange, refresh, and device-flow polling (RFC 8628)
//   - AuthChallenge: parsed WWW-Authenticate header information
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//
// # Usage
//
//	import "cleat/pkg/oauth"
//
//	client := oauth.NewClient(oauth.WithLogger(logger))
//	cfg, err := client.Discover(ctx, "https://mcp.example.com")
//	if err != nil { ... }
//	reg, err := client.RegisterCodeClient(ctx, cfg, redirectURI)
//	pkce, err := oauth.GeneratePKCE()
//
// Discovery results are cached per normalized server URL with a TTL, and
// concurrent discoveries for the same server are deduplicated.
package oauth
