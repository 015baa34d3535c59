package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// Validate checks the configuration after defaults have been applied. It
// collects every problem rather than stopping at the first one.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := ValidateOneOf("logLevel", c.LogLevel, []string{"debug", "info", "warn", "warning", "error"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	seen := make(map[string]bool)
	for i := range c.Servers {
		srv := &c.Servers[i]
		prefix := fmt.Sprintf("servers[%d]", i)

		switch {
		case strings.TrimSpace(srv.Name) == "":
			errs.Add(prefix+".name", "is required", srv.Name)
		case strings.Contains(srv.Name, " "):
			errs.Add(prefix+".name", "cannot contain spaces", srv.Name)
		case seen[srv.Name]:
			errs.Add(prefix+".name", "is already used by another server", srv.Name)
		default:
			seen[srv.Name] = true
		}

		switch srv.Transport {
		case TransportHTTP:
			validateHTTPServer(&errs, prefix, srv)
		case TransportStdio:
			validateStdioServer(&errs, prefix, srv)
		case "":
			errs.Add(prefix+".transport", "cannot be inferred: set url or command")
		default:
			errs.Add(prefix+".transport", fmt.Sprintf("must be one of: %s, %s", TransportHTTP, TransportStdio), string(srv.Transport))
		}

		validateAuth(&errs, prefix, srv)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHTTPServer(errs *ValidationErrors, prefix string, srv *ServerConfig) {
	if srv.URL == "" {
		errs.Add(prefix+".url", "is required for the http transport")
	} else if u, err := url.Parse(srv.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(prefix+".url", "must be an http or https URL", srv.URL)
	}
	if srv.Command != "" {
		errs.Add(prefix+".command", "cannot be set for the http transport", srv.Command)
	}
}

func validateStdioServer(errs *ValidationErrors, prefix string, srv *ServerConfig) {
	if srv.Command == "" {
		errs.Add(prefix+".command", "is required for the stdio transport")
	}
	if srv.URL != "" {
		errs.Add(prefix+".url", "cannot be set for the stdio transport", srv.URL)
	}
}

func validateAuth(errs *ValidationErrors, prefix string, srv *ServerConfig) {
	switch srv.Auth.Mode {
	case AuthModeOAuth:
		if srv.Transport == TransportStdio {
			errs.Add(prefix+".auth.mode", "oauth requires the http transport")
		}
	case AuthModeToken:
		if srv.Auth.Token == "" {
			errs.Add(prefix+".auth.token", "is required for token mode")
		}
	case AuthModeNone:
		if srv.Auth.Token != "" {
			errs.Add(prefix+".auth.token", "cannot be set when mode is none", srv.Auth.Token)
		}
	default:
		errs.Add(prefix+".auth.mode", fmt.Sprintf("must be one of: %s, %s, %s", AuthModeOAuth, AuthModeToken, AuthModeNone), string(srv.Auth.Mode))
	}
	if srv.Auth.CallbackPort < 0 || srv.Auth.CallbackPort > 65535 {
		errs.Add(prefix+".auth.callbackPort", "must be between 0 and 65535", srv.Auth.CallbackPort)
	}
}
