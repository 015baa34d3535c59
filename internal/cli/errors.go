package cli

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ConnectionErrorType categorizes a failed connection attempt.
type ConnectionErrorType int

const (
	// ConnectionErrorUnknown is an unclassified connection failure.
	ConnectionErrorUnknown ConnectionErrorType = iota
	// ConnectionErrorTLS is a certificate verification failure.
	ConnectionErrorTLS
	// ConnectionErrorNetwork is a connectivity failure (refused, unreachable).
	ConnectionErrorNetwork
	// ConnectionErrorTimeout is a connection or request timeout.
	ConnectionErrorTimeout
	// ConnectionErrorDNS is a hostname resolution failure.
	ConnectionErrorDNS
)

func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ConnectionError is a classified connection failure. Its message carries
// guidance matched to the failure category, since "connection refused" and
// "x509: unknown authority" call for very different fixes.
type ConnectionError struct {
	// Endpoint is the URL that could not be reached.
	Endpoint string
	// Type categorizes the failure.
	Type ConnectionErrorType
	// Reason is the underlying error.
	Reason error
}

func (e *ConnectionError) Error() string {
	switch e.Type {
	case ConnectionErrorTLS:
		return fmt.Sprintf(`TLS certificate verification failed for %s: %v

Possible causes:
  - Self-signed or untrusted certificate on the server
  - Corporate proxy intercepting TLS
  - System clock is wrong`, e.Endpoint, e.Reason)

	case ConnectionErrorDNS:
		return fmt.Sprintf(`DNS resolution failed for %s: %v

Check that the hostname is spelled correctly and resolvable from this machine.`, e.Endpoint, e.Reason)

	case ConnectionErrorTimeout:
		return fmt.Sprintf(`Connection to %s timed out: %v

The server may be overloaded or unreachable from this network.`, e.Endpoint, e.Reason)

	case ConnectionErrorNetwork:
		return fmt.Sprintf(`Connection failed for %s: %v

Possible causes:
  - Server is not running at this address
  - A firewall is blocking the connection`, e.Endpoint, e.Reason)

	default:
		return fmt.Sprintf("Connection failed for %s: %v", e.Endpoint, e.Reason)
	}
}

func (e *ConnectionError) Unwrap() error {
	return e.Reason
}

// Is matches any ConnectionError regardless of endpoint or category.
func (e *ConnectionError) Is(target error) bool {
	_, ok := target.(*ConnectionError)
	return ok
}

// ClassifyConnectionError wraps a raw connection failure in a
// ConnectionError with its category. Categories are tried from most to
// least specific; anything unrecognized stays ConnectionErrorUnknown.
// A nil error classifies to nil.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil {
		return nil
	}

	errType := ConnectionErrorUnknown
	switch {
	case isTLSError(err):
		errType = ConnectionErrorTLS
	case isDNSError(err):
		errType = ConnectionErrorDNS
	case isTimeoutError(err):
		errType = ConnectionErrorTimeout
	case isNetworkError(err):
		errType = ConnectionErrorNetwork
	}

	return &ConnectionError{
		Endpoint: endpoint,
		Type:     errType,
		Reason:   err,
	}
}

// isTLSError matches certificate verification failures, whether they
// surface as typed x509 errors or only as text inside a transport error.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}

	var (
		invalidErr *x509.CertificateInvalidError
		hostErr    *x509.HostnameError
		authErr    *x509.UnknownAuthorityError
		rootsErr   *x509.SystemRootsError
	)
	if errors.As(err, &invalidErr) || errors.As(err, &hostErr) ||
		errors.As(err, &authErr) || errors.As(err, &rootsErr) {
		return true
	}

	// "certificate" is deliberately broad; it catches expiry and name
	// mismatch messages that carry no typed error through the HTTP client.
	return containsAny(err.Error(), "x509:", "certificate", "tls:", "TLS handshake")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsAny(err.Error(), "timeout", "deadline exceeded")
}

func isNetworkError(err error) bool {
	return containsAny(err.Error(),
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"dial tcp",
		"connect:",
	)
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AuthRequiredError means the server challenged and no usable token exists.
// Commands exit with the auth-required code when they return it.
type AuthRequiredError struct {
	// Endpoint is the URL that requires authentication.
	Endpoint string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Authentication required for %s

Run:
  cleat auth login --endpoint %s

and retry. Current tokens are listed by:
  cleat auth status`, e.Endpoint, e.Endpoint)
}

// Is matches any AuthRequiredError regardless of endpoint.
func (e *AuthRequiredError) Is(target error) bool {
	_, ok := target.(*AuthRequiredError)
	return ok
}

// AuthExpiredError means a stored token exists but is past its lifetime
// and could not be renewed.
type AuthExpiredError struct {
	// Endpoint is the URL whose token has expired.
	Endpoint string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf(`Authentication expired for %s

Renew the token with:
  cleat auth refresh --endpoint %s

or log in again:
  cleat auth login --endpoint %s`, e.Endpoint, e.Endpoint, e.Endpoint)
}

// Is matches any AuthExpiredError regardless of endpoint.
func (e *AuthExpiredError) Is(target error) bool {
	_, ok := target.(*AuthExpiredError)
	return ok
}

// AuthFailedError means an authentication flow ran and did not produce a
// usable token. Commands exit with the auth-failed code when they return it.
type AuthFailedError struct {
	// Endpoint is the URL where authentication failed.
	Endpoint string
	// Reason is the underlying error.
	Reason error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Authentication failed for %s: %v

Retry with:
  cleat auth login --endpoint %s`, e.Endpoint, e.Reason, e.Endpoint)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// Is matches any AuthFailedError regardless of endpoint or reason.
func (e *AuthFailedError) Is(target error) bool {
	_, ok := target.(*AuthFailedError)
	return ok
}
