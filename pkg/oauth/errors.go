package oauth

import (
	"fmt"
)

// DiscoveryError indicates that OAuth metadata discovery failed: a metadata
// document could not be fetched, or a fetched document was missing required
// fields.
type DiscoveryError struct {
	// ServerURL is the normalized tool-server root discovery was run for.
	ServerURL string

	// URL is the metadata URL that failed, when one is known.
	URL string

	// Reason describes what went wrong.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("oauth discovery failed for %s: %s", e.ServerURL, e.Reason)
	if e.URL != "" {
		msg += fmt.Sprintf(" (%s)", e.URL)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// RegistrationError indicates that dynamic client registration failed: the
// server offers no registration endpoint, or the registration request was
// rejected.
type RegistrationError struct {
	// Endpoint is the registration endpoint, when one was advertised.
	Endpoint string

	// Status is the HTTP status of the rejection, when the request was made.
	Status int

	// Detail describes the failure.
	Detail string

	// Err is the underlying error, if any.
	Err error
}

func (e *RegistrationError) Error() string {
	msg := "client registration failed"
	if e.Endpoint != "" {
		msg += " at " + e.Endpoint
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// AuthorizationError is the generic authorization failure: a structured error
// from an OAuth endpoint (carrying the server's error code and description),
// or a local failure in an authorization flow.
type AuthorizationError struct {
	// Code is the OAuth error code, e.g. "invalid_grant", when the server
	// returned one.
	Code string

	// Description is the human-readable error description.
	Description string

	// Err is the underlying error, if any.
	Err error
}

func (e *AuthorizationError) Error() string {
	msg := "authorization failed"
	switch {
	case e.Code != "" && e.Description != "":
		msg += fmt.Sprintf(": %s: %s", e.Code, e.Description)
	case e.Code != "":
		msg += ": " + e.Code
	case e.Description != "":
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// DeviceFlowExpiredError indicates the device code expired before the user
// approved it. Terminal: the flow must be restarted from the beginning.
type DeviceFlowExpiredError struct{}

func (e *DeviceFlowExpiredError) Error() string {
	return "device authorization expired before it was approved; run the login flow again"
}

// DeviceFlowDeniedError indicates the user (or the server) denied the device
// authorization request. Terminal: never retried.
type DeviceFlowDeniedError struct{}

func (e *DeviceFlowDeniedError) Error() string {
	return "device authorization was denied"
}

// ErrorResponse is the standard OAuth 2.0 error body returned by token and
// registration endpoints.
type ErrorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// authorizationError converts the wire error body into an AuthorizationError.
func (e *ErrorResponse) authorizationError() *AuthorizationError {
	return &AuthorizationError{Code: e.Code, Description: e.Description}
}

// Device-flow error codes from RFC 8628 §3.5.
const (
	errCodeAuthorizationPending = "authorization_pending"
	errCodeSlowDown             = "slow_down"
	errCodeAccessDenied         = "access_denied"
	errCodeExpiredToken         = "expired_token"
)
