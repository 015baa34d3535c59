package session

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
)

// authKeywords mark an error as an authorization failure when no typed
// error or recognizable status is present. Matched case-insensitively
// against the full wrapped message chain.
var authKeywords = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid_token",
	"authentication",
}

// IsAuthFailure reports whether err represents an authorization failure
// that warrants clearing the cached token and reconnecting. It is the
// single classification point for the retry-once policy: a typed OAuth
// authorization error from the transport, an HTTP 401/403 anywhere in the
// wrapped chain, or an auth keyword in the message.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	if client.IsOAuthAuthorizationRequiredError(err) {
		return true
	}

	if status, ok := HTTPStatusFromError(err); ok &&
		(status == 401 || status == 403) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range authKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}

// HTTPStatusFromError recovers an HTTP status code mentioned in an error's
// message chain. The MCP transport reports non-2xx responses as formatted
// text rather than typed errors, so the status has to be read back out of
// the message. Returns false when no 4xx/5xx status is mentioned.
func HTTPStatusFromError(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	msg := strings.ToLower(err.Error())
	for code := 400; code <= 599; code++ {
		for _, form := range []string{"status %d", "status code: %d", "http %d"} {
			if strings.Contains(msg, fmt.Sprintf(form, code)) {
				return code, true
			}
		}
	}

	return 0, false
}
