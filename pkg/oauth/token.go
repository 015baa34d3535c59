package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// tokenResponse is the wire shape of a successful token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// newTokenSet stamps a wire token response into a TokenSet, recording the
// issue time and the client credentials that can refresh it later.
func (c *Client) newTokenSet(tr *tokenResponse, clientID, clientSecret string) *TokenSet {
	return &TokenSet{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
		IssuedAt:     c.now(),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// postTokenForm posts to a token endpoint and separates the three outcomes:
// a token, a structured OAuth error body, or a transport-level failure.
// Device-flow polling treats some structured errors as loop states rather
// than failures, so they are returned as data here.
func (c *Client) postTokenForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, *ErrorResponse, error) {
	status, body, err := c.postFormRaw(ctx, endpoint, form)
	if err != nil {
		return nil, nil, err
	}

	if status == http.StatusOK {
		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, nil, fmt.Errorf("failed to parse token response from %s: %w", endpoint, err)
		}
		if tr.AccessToken == "" {
			return nil, nil, fmt.Errorf(`token response from %s is missing "access_token"`, endpoint)
		}
		return &tr, nil, nil
	}

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Code != "" {
		c.logger.Debug("Token endpoint returned error",
			"endpoint", endpoint,
			"status", status,
			"error", er.Code,
			"description", er.Description)
		return nil, &er, nil
	}

	return nil, nil, fmt.Errorf("token request to %s failed with status %d", endpoint, status)
}

// ExchangeCode exchanges an authorization code for a TokenSet. The PKCE code
// verifier must be the one whose challenge was sent in the authorization
// request; confidential clients additionally present their secret.
func (c *Client) ExchangeCode(ctx context.Context, cfg *Config, client *RegisteredClient, code, redirectURI, codeVerifier string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {client.ClientID},
		"code_verifier": {codeVerifier},
	}
	if !client.Public() {
		form.Set("client_secret", client.ClientSecret)
	}

	tr, er, err := c.postTokenForm(ctx, cfg.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}
	if er != nil {
		return nil, er.authorizationError()
	}

	return c.newTokenSet(tr, client.ClientID, client.ClientSecret), nil
}

// Refresh obtains a new access token using the refresh token carried by the
// given TokenSet, presenting the same client credentials the token was issued
// with. The returned TokenSet carries those credentials forward, and keeps the
// old refresh token and scope when the server omits them.
func (c *Client) Refresh(ctx context.Context, cfg *Config, token *TokenSet) (*TokenSet, error) {
	if !token.Refreshable() {
		return nil, fmt.Errorf("token for %s has no refresh token", cfg.ServerURL)
	}

	form := url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"refresh_token": {token.RefreshToken},
	}
	if token.ClientID != "" {
		form.Set("client_id", token.ClientID)
	}
	if token.ClientSecret != "" {
		form.Set("client_secret", token.ClientSecret)
	}

	tr, er, err := c.postTokenForm(ctx, cfg.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}
	if er != nil {
		return nil, er.authorizationError()
	}

	refreshed := c.newTokenSet(tr, token.ClientID, token.ClientSecret)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if refreshed.Scope == "" {
		refreshed.Scope = token.Scope
	}

	return refreshed, nil
}

// BuildAuthorizationURL constructs the browser URL for the authorization-code
// flow.
func (c *Client) BuildAuthorizationURL(cfg *Config, clientID, redirectURI, state, scope string, pkce *PKCEChallenge) (string, error) {
	authURL, err := url.Parse(cfg.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", ResponseTypeCode)
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)

	if scope != "" {
		query.Set("scope", scope)
	}

	if pkce != nil {
		query.Set("code_challenge", pkce.CodeChallenge)
		query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}
