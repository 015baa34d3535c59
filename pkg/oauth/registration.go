package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RegisterCodeClient registers an OAuth client for the authorization-code
// flow (RFC 7591): redirect-based, requesting the authorization_code and
// refresh_token grants. Registrations are memoized per endpoint and redirect
// URI for the lifetime of the process.
func (c *Client) RegisterCodeClient(ctx context.Context, cfg *Config, redirectURI string) (*RegisteredClient, error) {
	body := &ClientMetadata{
		ClientName:              c.clientName,
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		ResponseTypes:           []string{ResponseTypeCode},
		TokenEndpointAuthMethod: c.registrationAuthMethod(cfg),
	}
	return c.register(ctx, cfg, body, "code|"+redirectURI)
}

// RegisterDeviceClient registers an OAuth client for the device authorization
// flow: no redirect URIs, requesting the device_code and refresh_token
// grants.
func (c *Client) RegisterDeviceClient(ctx context.Context, cfg *Config) (*RegisteredClient, error) {
	body := &ClientMetadata{
		ClientName:              c.clientName,
		GrantTypes:              []string{GrantTypeDeviceCode, GrantTypeRefreshToken},
		TokenEndpointAuthMethod: c.registrationAuthMethod(cfg),
	}
	return c.register(ctx, cfg, body, "device")
}

// registrationAuthMethod picks the token endpoint auth method to request:
// "none" when the server accepts public clients, otherwise
// "client_secret_post".
func (c *Client) registrationAuthMethod(cfg *Config) string {
	if cfg.SupportsPublicClients() {
		return AuthMethodNone
	}
	return AuthMethodClientSecretPost
}

func (c *Client) register(ctx context.Context, cfg *Config, body *ClientMetadata, kind string) (*RegisteredClient, error) {
	if cfg.RegistrationEndpoint == "" {
		return nil, &RegistrationError{
			Detail: fmt.Sprintf("authorization server %s does not offer dynamic client registration", cfg.AuthorizationServer),
		}
	}

	cacheKey := cfg.RegistrationEndpoint + "|" + kind

	c.regMu.Lock()
	defer c.regMu.Unlock()

	if reg, ok := c.regCache[cacheKey]; ok {
		return reg, nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &RegistrationError{Endpoint: cfg.RegistrationEndpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RegistrationEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RegistrationError{Endpoint: cfg.RegistrationEndpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RegistrationError{Endpoint: cfg.RegistrationEndpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, &RegistrationError{Endpoint: cfg.RegistrationEndpoint, Err: err}
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail := registrationFailureDetail(respBody)
		return nil, &RegistrationError{
			Endpoint: cfg.RegistrationEndpoint,
			Status:   resp.StatusCode,
			Detail:   detail,
		}
	}

	var reg RegisteredClient
	if err := json.Unmarshal(respBody, &reg); err != nil {
		return nil, &RegistrationError{
			Endpoint: cfg.RegistrationEndpoint,
			Detail:   "failed to parse registration response",
			Err:      err,
		}
	}

	if reg.ClientID == "" {
		return nil, &RegistrationError{
			Endpoint: cfg.RegistrationEndpoint,
			Detail:   `registration response is missing "client_id"`,
		}
	}

	c.logger.Debug("Registered OAuth client",
		"endpoint", cfg.RegistrationEndpoint,
		"client_id", reg.ClientID,
		"public", reg.Public())

	c.regCache[cacheKey] = &reg
	return &reg, nil
}

// registrationFailureDetail extracts a useful message from a registration
// rejection body.
func registrationFailureDetail(body []byte) string {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Code != "" {
		if er.Description != "" {
			return er.Code + ": " + er.Description
		}
		return er.Code
	}
	if len(body) > 0 {
		return string(body)
	}
	return "registration request rejected"
}
