package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RequestDeviceAuthorization starts a device authorization flow (RFC 8628):
// it asks the authorization server for a device_code/user_code pair the user
// can approve on another device.
func (c *Client) RequestDeviceAuthorization(ctx context.Context, cfg *Config, client *RegisteredClient, scopes []string) (*DeviceAuthorization, error) {
	if cfg.DeviceAuthorizationEndpoint == "" {
		return nil, fmt.Errorf("authorization server %s does not advertise a device authorization endpoint", cfg.AuthorizationServer)
	}

	form := url.Values{
		"client_id": {client.ClientID},
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	if !client.Public() {
		form.Set("client_secret", client.ClientSecret)
	}

	status, body, err := c.postFormRaw(ctx, cfg.DeviceAuthorizationEndpoint, form)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		var er ErrorResponse
		if jsonErr := json.Unmarshal(body, &er); jsonErr == nil && er.Code != "" {
			return nil, er.authorizationError()
		}
		return nil, fmt.Errorf("device authorization request to %s failed with status %d", cfg.DeviceAuthorizationEndpoint, status)
	}

	var da DeviceAuthorization
	if err := json.Unmarshal(body, &da); err != nil {
		return nil, fmt.Errorf("failed to parse device authorization response: %w", err)
	}

	if da.DeviceCode == "" || da.UserCode == "" || da.VerificationURI == "" {
		return nil, fmt.Errorf("device authorization response from %s is missing required fields", cfg.DeviceAuthorizationEndpoint)
	}
	if da.ExpiresIn <= 0 {
		return nil, fmt.Errorf(`device authorization response from %s is missing "expires_in"`, cfg.DeviceAuthorizationEndpoint)
	}

	c.logger.Debug("Device authorization started",
		"verification_uri", da.VerificationURI,
		"user_code", da.UserCode,
		"expires_in", da.ExpiresIn,
		"interval", da.Interval)

	return &da, nil
}

// PollState classifies the outcome of a single device-flow token poll.
type PollState int

const (
	// PollPending means the user has not approved yet; poll again after the
	// interval.
	PollPending PollState = iota

	// PollSlowDown means the server wants a permanently longer interval.
	PollSlowDown

	// PollDenied means the user denied the request. Terminal.
	PollDenied

	// PollExpired means the device code expired. Terminal.
	PollExpired

	// PollFailed means the poll failed for a reason outside the device-flow
	// protocol (transport error or an unexpected OAuth error). Terminal.
	PollFailed

	// PollSuccess means a token was issued.
	PollSuccess
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSlowDown:
		return "slow_down"
	case PollDenied:
		return "denied"
	case PollExpired:
		return "expired"
	case PollFailed:
		return "failed"
	case PollSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// PollResult is the tagged outcome of one device-flow poll. Token is set only
// for PollSuccess; Err is set only for PollFailed.
type PollResult struct {
	State PollState
	Token *TokenSet
	Err   error
}

// PollDeviceTokenOnce performs a single token-endpoint poll for a pending
// device authorization and classifies the response. It never sleeps.
func (c *Client) PollDeviceTokenOnce(ctx context.Context, cfg *Config, client *RegisteredClient, da *DeviceAuthorization) PollResult {
	form := url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {da.DeviceCode},
		"client_id":   {client.ClientID},
	}
	if !client.Public() {
		form.Set("client_secret", client.ClientSecret)
	}

	tr, er, err := c.postTokenForm(ctx, cfg.TokenEndpoint, form)
	if err != nil {
		return PollResult{State: PollFailed, Err: err}
	}

	if er != nil {
		switch er.Code {
		case errCodeAuthorizationPending:
			return PollResult{State: PollPending}
		case errCodeSlowDown:
			return PollResult{State: PollSlowDown}
		case errCodeAccessDenied:
			return PollResult{State: PollDenied}
		case errCodeExpiredToken:
			return PollResult{State: PollExpired}
		default:
			return PollResult{State: PollFailed, Err: er.authorizationError()}
		}
	}

	return PollResult{
		State: PollSuccess,
		Token: c.newTokenSet(tr, client.ClientID, client.ClientSecret),
	}
}

// PollDeviceToken polls the token endpoint until the device authorization is
// approved, denied, or expired. It honors the server-directed interval,
// permanently adds five seconds on every slow_down, and enforces a wall-clock
// deadline equal to the device code's expires_in regardless of what the
// server keeps answering.
func (c *Client) PollDeviceToken(ctx context.Context, cfg *Config, client *RegisteredClient, da *DeviceAuthorization) (*TokenSet, error) {
	interval := da.PollInterval()
	deadline := c.now().Add(da.Lifetime())

	for {
		if !c.now().Before(deadline) {
			return nil, &DeviceFlowExpiredError{}
		}

		result := c.PollDeviceTokenOnce(ctx, cfg, client, da)
		switch result.State {
		case PollSuccess:
			return result.Token, nil
		case PollPending:
			// keep the current interval
		case PollSlowDown:
			interval += slowDownIncrement
		case PollDenied:
			return nil, &DeviceFlowDeniedError{}
		case PollExpired:
			return nil, &DeviceFlowExpiredError{}
		case PollFailed:
			return nil, result.Err
		}

		c.logger.Debug("Device authorization pending",
			"state", result.State.String(),
			"next_poll_in", interval)

		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}
