package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryBuffer is the default safety margin when checking token expiry.
// A token within this buffer of its expiry is treated as already expired, which
// accounts for clock skew and the latency of the request that will use it.
const DefaultExpiryBuffer = 60 * time.Second

// DefaultCallbackPort is the port the local authorization-code callback
// listener binds when no port is configured.
const DefaultCallbackPort = 8889

// TokenTypeBearer is the default OAuth token type.
const TokenTypeBearer = "Bearer"

// OAuth grant types used by this client.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// Token endpoint client authentication methods (RFC 7591).
const (
	AuthMethodNone             = "none"
	AuthMethodClientSecretPost = "client_secret_post"
)

// ResponseTypeCode is the authorization-code response type.
const ResponseTypeCode = "code"

// CodeChallengeMethodS256 is the only PKCE challenge method this client uses.
const CodeChallengeMethodS256 = "S256"

// Well-known discovery paths.
const (
	wellKnownProtectedResource = "/.well-known/oauth-protected-resource"
	wellKnownAuthServer        = "/.well-known/oauth-authorization-server"
	wellKnownOpenIDConfig      = "/.well-known/openid-configuration"
)

// NormalizeServerURL normalizes a server URL by stripping transport-specific
// path suffixes (/mcp, /sse) and trailing slashes to get the base server URL.
// This ensures consistent token storage and OAuth metadata discovery regardless
// of which endpoint path is used when connecting.
func NormalizeServerURL(serverURL string) string {
	serverURL = strings.TrimSuffix(serverURL, "/")
	serverURL = strings.TrimSuffix(serverURL, "/mcp")
	serverURL = strings.TrimSuffix(serverURL, "/sse")
	return serverURL
}

// TokenSet represents an OAuth access token with the metadata needed to use
// and later refresh it. The client credentials that obtained the token are
// carried along so refresh never requires re-registration.
type TokenSet struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the token lifetime in seconds. Zero means the token does
	// not expire.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// IssuedAt is when the token was issued. Expiry is computed relative to it.
	IssuedAt time.Time `json:"issued_at"`

	// ClientID identifies the registered client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// ClientSecret is the registered client's secret, if it is confidential.
	ClientSecret string `json:"client_secret,omitempty"`
}

// IsExpired reports whether the token has expired or will expire within the
// given buffer. Tokens without an expiry never expire.
func (t *TokenSet) IsExpired(buffer time.Duration) bool {
	if t.ExpiresIn <= 0 {
		return false
	}
	deadline := t.IssuedAt.Add(time.Duration(t.ExpiresIn)*time.Second - buffer)
	return !time.Now().Before(deadline)
}

// ExpiresAt returns the token's expiry time, or the zero time for tokens
// without an expiry.
func (t *TokenSet) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Type returns the token type, defaulting to "Bearer" when unset.
func (t *TokenSet) Type() string {
	if t.TokenType == "" {
		return TokenTypeBearer
	}
	return t.TokenType
}

// Refreshable reports whether the token carries a refresh token.
func (t *TokenSet) Refreshable() bool {
	return t.RefreshToken != ""
}

// Scopes returns the scope as a slice of individual scopes.
func (t *TokenSet) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the TokenSet to an oauth2.Token for interoperability
// with golang.org/x/oauth2.
func (t *TokenSet) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.Type(),
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
	}
}

// ProtectedResourceMetadata represents OAuth 2.0 Protected Resource Metadata
// as defined in RFC 9728. It is the first step of discovery: the tool server
// names the authorization servers that protect it.
type ProtectedResourceMetadata struct {
	// Resource is the protected resource's identifier URL.
	Resource string `json:"resource"`

	// AuthorizationServers lists the issuer URLs of the authorization servers
	// that can issue tokens for this resource. The first entry wins.
	AuthorizationServers []string `json:"authorization_servers"`

	// ScopesSupported lists the scopes the resource understands.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// BearerMethodsSupported lists the supported bearer token presentation
	// methods.
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in
// RFC 8414 (also matches OpenID Connect discovery documents).
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RegistrationEndpoint is the URL for dynamic client registration.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// DeviceAuthorizationEndpoint is the RFC 8628 device authorization
	// endpoint.
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint,omitempty"`

	// IntrospectionEndpoint is the RFC 7662 token introspection endpoint.
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the response_type values supported.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists the grant types supported.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods.
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE reports whether the server advertises S256 PKCE support.
func (m *Metadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == CodeChallengeMethodS256 {
			return true
		}
	}
	return false
}

// SupportsPublicClients reports whether the server accepts public clients,
// i.e. lists "none" among its token endpoint auth methods.
func (m *Metadata) SupportsPublicClients() bool {
	for _, method := range m.TokenEndpointAuthMethodsSupported {
		if method == AuthMethodNone {
			return true
		}
	}
	return false
}

// SupportsDeviceFlow reports whether the server supports the device
// authorization grant: the grant URN must be listed and a device authorization
// endpoint must be advertised.
func (m *Metadata) SupportsDeviceFlow() bool {
	if m.DeviceAuthorizationEndpoint == "" {
		return false
	}
	for _, grant := range m.GrantTypesSupported {
		if grant == GrantTypeDeviceCode {
			return true
		}
	}
	return false
}

// Config is the capability descriptor for one protected server, produced by
// two-step discovery. It is immutable, created once per server per process,
// and never persisted.
type Config struct {
	*Metadata

	// ServerURL is the normalized tool-server root the config was discovered
	// for.
	ServerURL string

	// Resource is the protected resource identifier from the resource
	// metadata.
	Resource string

	// AuthorizationServer is the issuer URL of the authorization server that
	// was selected (the first one the resource listed).
	AuthorizationServer string

	// ResourceScopes lists the scopes the protected resource itself
	// advertises, as opposed to Metadata.ScopesSupported which is
	// server-wide.
	ResourceScopes []string
}

// RegisteredClient holds the credentials returned by dynamic client
// registration (RFC 7591).
type RegisteredClient struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientIDIssuedAt      int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at,omitempty"`

	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// Public reports whether the client is a public client (no secret, PKCE only).
func (rc *RegisteredClient) Public() bool {
	return rc.ClientSecret == ""
}

// ClientMetadata is the request body for dynamic client registration
// (RFC 7591).
type ClientMetadata struct {
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// DeviceAuthorization is the response from the device authorization endpoint
// (RFC 8628). It exists only for the duration of one device-flow attempt.
type DeviceAuthorization struct {
	// DeviceCode is the device verification code. It is a secret and is never
	// shown to humans.
	DeviceCode string `json:"device_code"`

	// UserCode is the short code the user enters at the verification URI.
	UserCode string `json:"user_code"`

	// VerificationURI is where the user approves the authorization.
	VerificationURI string `json:"verification_uri"`

	// VerificationURIComplete embeds the user code in the URI, when offered.
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`

	// ExpiresIn is the lifetime of the device code in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// Interval is the minimum polling interval in seconds.
	Interval int64 `json:"interval,omitempty"`
}

// PollInterval returns the server-directed polling interval, defaulting to
// the RFC 8628 minimum of 5 seconds.
func (d *DeviceAuthorization) PollInterval() time.Duration {
	if d.Interval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.Interval) * time.Second
}

// Lifetime returns how long the device code remains valid.
func (d *DeviceAuthorization) Lifetime() time.Duration {
	return time.Duration(d.ExpiresIn) * time.Second
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
// A challenge can point discovery at the right resource metadata document via
// the RFC 9728 resource_metadata parameter.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer" for OAuth 2.0).
	Scheme string

	// Realm is the protection realm (often the authorization server URL).
	Realm string

	// Issuer is the OAuth/OIDC issuer URL, derived from Realm when it is a URL.
	Issuer string

	// ResourceMetadataURL is the URL of the protected resource metadata
	// (RFC 9728 resource_metadata parameter).
	ResourceMetadataURL string

	// Scope is the space-separated list of required OAuth scopes.
	Scope string

	// Error is the error code from the WWW-Authenticate header (if any).
	Error string

	// ErrorDescription is a human-readable error description (if any).
	ErrorDescription string
}

// IsOAuthChallenge reports whether this represents an OAuth authentication
// challenge the client can act on.
func (c *AuthChallenge) IsOAuthChallenge() bool {
	if c == nil {
		return false
	}
	if !strings.EqualFold(c.Scheme, "Bearer") {
		return false
	}
	return c.Realm != "" || c.ResourceMetadataURL != "" || c.Issuer != ""
}
