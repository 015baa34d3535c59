package oauth

import (
	"fmt"
	"net/http"
	"strings"
)

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
// It supports the Bearer scheme with OAuth 2.0 and RFC 9728 parameters.
//
// Example headers:
//
//	Bearer realm="https://auth.example.com"
//	Bearer realm="https://auth.example.com", scope="openid profile"
//	Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
//
// Returns an AuthChallenge with the parsed parameters, or an error if the
// header is empty.
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	scheme, rest, _ := strings.Cut(header, " ")
	challenge := &AuthChallenge{
		Scheme: scheme,
	}

	params := parseAuthParams(rest)

	if realm, ok := params["realm"]; ok {
		challenge.Realm = realm
		// A URL-shaped realm doubles as the issuer.
		if strings.HasPrefix(realm, "http://") || strings.HasPrefix(realm, "https://") {
			challenge.Issuer = realm
		}
	}

	if resourceMeta, ok := params["resource_metadata"]; ok {
		challenge.ResourceMetadataURL = resourceMeta
	}

	if scope, ok := params["scope"]; ok {
		challenge.Scope = scope
	}

	if errCode, ok := params["error"]; ok {
		challenge.Error = errCode
	}

	if errDesc, ok := params["error_description"]; ok {
		challenge.ErrorDescription = errDesc
	}

	return challenge, nil
}

// parseAuthParams parses the parameter portion of a WWW-Authenticate header:
// comma-separated key=value pairs where values may be quoted. Commas inside
// quoted values do not split.
func parseAuthParams(paramStr string) map[string]string {
	params := make(map[string]string)

	for _, part := range splitAuthParams(paramStr) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = value[1 : len(value)-1]
		}
		if key != "" {
			params[key] = value
		}
	}

	return params
}

// splitAuthParams splits on commas that are outside double quotes.
func splitAuthParams(s string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			if piece := strings.TrimSpace(current.String()); piece != "" {
				parts = append(parts, piece)
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if piece := strings.TrimSpace(current.String()); piece != "" {
		parts = append(parts, piece)
	}

	return parts
}

// ParseWWWAuthenticateFromResponse extracts the auth challenge from a 401
// response. Returns nil if no WWW-Authenticate header is present.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(header)
	if err != nil {
		return nil
	}

	return challenge
}

// ParseWWWAuthenticateFromError attempts to extract an auth challenge from an
// error message. This is a best-effort fallback for transports that fold the
// response into the error text, used to recover the resource_metadata hint.
//
// Returns nil when the error does not look like an authentication failure.
func ParseWWWAuthenticateFromError(err error) *AuthChallenge {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	if !strings.Contains(errStr, "401") &&
		!strings.Contains(strings.ToLower(errStr), "unauthorized") {
		return nil
	}

	// Try to find and parse a Bearer challenge inside the message.
	if idx := strings.Index(errStr, "Bearer"); idx >= 0 {
		remaining := errStr[idx:]
		if endIdx := strings.IndexAny(remaining, "\n\r"); endIdx > 0 {
			remaining = remaining[:endIdx]
		}

		challenge, parseErr := ParseWWWAuthenticate(remaining)
		if parseErr == nil {
			return challenge
		}
	}

	// No parseable challenge; report a bare Bearer challenge so callers know
	// authentication is required.
	return &AuthChallenge{
		Scheme: "Bearer",
	}
}
