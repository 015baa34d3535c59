package authflow

import (
	"context"
	"fmt"
	"strings"

	"cleat/pkg/logging"
	"cleat/pkg/oauth"
)

// codeFlow runs the browser-based PKCE authorization-code flow: register a
// client, open the authorize URL, capture the redirect on a local listener,
// and exchange the code for tokens.
func (a *Authenticator) codeFlow(ctx context.Context, cfg *oauth.Config) (*oauth.TokenSet, error) {
	if !cfg.SupportsPKCE() {
		logging.Debug("AuthFlow", "Server %s does not advertise S256; sending PKCE anyway", cfg.AuthorizationServer)
	}

	port := a.callbackPort
	if port == 0 {
		port = oauth.DefaultCallbackPort
	}

	callback := NewCallbackServer(port)
	redirectURI, err := callback.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer callback.Stop()

	reg, err := a.client.RegisterCodeClient(ctx, cfg, redirectURI)
	if err != nil {
		return nil, err
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}
	state, err := oauth.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	scope := strings.Join(a.requestScopes(cfg), " ")
	authURL, err := a.client.BuildAuthorizationURL(cfg, reg.ClientID, redirectURI, state, scope, pkce)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(a.out, "Opening your browser to sign in...")
	if err := a.openBrowser(authURL); err != nil {
		logging.Debug("AuthFlow", "Could not open browser: %v", err)
		fmt.Fprintf(a.out, "Could not open a browser. Visit this URL to sign in:\n\n  %s\n\n", authURL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.callbackTimeout)
	defer cancel()

	result, err := callback.WaitForCallback(waitCtx)
	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded {
			return nil, &oauth.AuthorizationError{
				Description: fmt.Sprintf("timed out after %s waiting for the browser sign-in", a.callbackTimeout),
			}
		}
		return nil, err
	}

	if result.IsError() {
		return nil, &oauth.AuthorizationError{
			Code:        result.Error,
			Description: result.ErrorDescription,
		}
	}

	if result.State != state {
		// A mismatched state means the redirect was not a response to our
		// request. Treat it as hostile and abort.
		return nil, &oauth.AuthorizationError{
			Description: "state parameter mismatch in authorization callback",
		}
	}

	if result.Code == "" {
		return nil, &oauth.AuthorizationError{
			Description: "authorization callback carried neither a code nor an error",
		}
	}

	token, err := a.client.ExchangeCode(ctx, cfg, reg, result.Code, redirectURI, pkce.CodeVerifier)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(a.out, "Authentication complete.")
	return token, nil
}
