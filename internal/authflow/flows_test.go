package authflow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cleat/pkg/oauth"
)

// freePort grabs an OS-assigned port and releases it for the callback server
// to bind. The window between release and rebind is small enough for tests.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// fakeBrowser plays the user's part in the code flow: it inspects the
// authorization URL the flow built and immediately "redirects back" by
// requesting the callback URL.
func fakeBrowser(t *testing.T, h *authHarness, challenge *atomic.Value, visit func(redirectURI, state string) string) func(string) error {
	t.Helper()
	return func(rawURL string) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("authorization URL does not parse: %w", err)
		}
		if u.Path != "/authorize" {
			t.Errorf("browser sent to %s, want the /authorize endpoint", u.Path)
		}
		if want := strings.TrimPrefix(h.server.URL, "http://"); u.Host != want {
			t.Errorf("browser sent to host %q, want the authorization server %q", u.Host, want)
		}

		q := u.Query()
		if got := q.Get("client_id"); got != "dyn-client" {
			t.Errorf("authorization URL client_id = %q, want the registered client", got)
		}
		if got := q.Get("response_type"); got != "code" {
			t.Errorf("authorization URL response_type = %q, want code", got)
		}
		if got := q.Get("scope"); got != "mcp.read mcp.write" {
			t.Errorf("authorization URL scope = %q, want the resource scopes", got)
		}
		if got := q.Get("code_challenge_method"); got != "S256" {
			t.Errorf("authorization URL code_challenge_method = %q, want S256", got)
		}
		if q.Get("code_challenge") == "" {
			t.Error("authorization URL carries no code_challenge")
		}
		challenge.Store(q.Get("code_challenge"))

		redirectURI := q.Get("redirect_uri")
		if !strings.HasSuffix(redirectURI, "/callback") {
			t.Errorf("redirect_uri = %q, want the local callback", redirectURI)
		}

		resp, err := http.Get(visit(redirectURI, q.Get("state")))
		if err != nil {
			return fmt.Errorf("visiting callback: %w", err)
		}
		resp.Body.Close()
		return nil
	}
}

func TestCodeFlow_EndToEnd(t *testing.T) {
	h := newAuthHarness(t, false)

	var challenge atomic.Value
	h.exchangeCode = func(w http.ResponseWriter, r *http.Request) {
		if got := r.PostForm.Get("code"); got != "test-code" {
			t.Errorf("exchange got code %q, want test-code", got)
		}
		if got := r.PostForm.Get("client_id"); got != "dyn-client" {
			t.Errorf("exchange got client_id %q, want dyn-client", got)
		}

		verifier := r.PostForm.Get("code_verifier")
		sum := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		if want, _ := challenge.Load().(string); derived != want {
			t.Errorf("code_verifier does not hash to the challenge the browser saw: got %q, want %q", derived, want)
		}

		writeJSON(t, w, map[string]any{
			"access_token":  "code-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "code-refresh",
			"scope":         "mcp.read mcp.write",
		})
	}

	var out bytes.Buffer
	auth := h.newAuthenticator(t,
		WithCallbackPort(freePort(t)),
		WithOutput(&out),
		WithBrowserOpener(fakeBrowser(t, h, &challenge, func(redirectURI, state string) string {
			return redirectURI + "?code=test-code&state=" + url.QueryEscape(state)
		})),
	)

	token, err := auth.Login(context.Background(), h.server.URL)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token.AccessToken != "code-access" {
		t.Errorf("Login access token = %q, want code-access", token.AccessToken)
	}
	if token.RefreshToken != "code-refresh" {
		t.Errorf("Login refresh token = %q, want code-refresh", token.RefreshToken)
	}
	if token.ClientID != "dyn-client" {
		t.Errorf("Login token client_id = %q, want the registered client carried along", token.ClientID)
	}

	if got := h.registrations.Load(); got != 1 {
		t.Errorf("registered %d times, want 1", got)
	}

	stored, err := h.store.Load(h.server.URL)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored == nil || stored.AccessToken != "code-access" {
		t.Errorf("stored token = %+v, want the exchanged token persisted", stored)
	}

	for _, want := range []string{"Opening your browser", "Authentication complete."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q does not mention %q", out.String(), want)
		}
	}
}

func TestCodeFlow_DeniedByUser(t *testing.T) {
	h := newAuthHarness(t, false)

	var challenge atomic.Value
	auth := h.newAuthenticator(t,
		WithCallbackPort(freePort(t)),
		WithOutput(&bytes.Buffer{}),
		WithBrowserOpener(fakeBrowser(t, h, &challenge, func(redirectURI, state string) string {
			return redirectURI + "?error=access_denied&error_description=" + url.QueryEscape("user declined")
		})),
	)

	_, err := auth.Login(context.Background(), h.server.URL)
	if err == nil {
		t.Fatal("Login succeeded after the user denied authorization")
	}

	var authErr *oauth.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *oauth.AuthorizationError", err)
	}
	if authErr.Code != "access_denied" {
		t.Errorf("error code = %q, want access_denied", authErr.Code)
	}
	if !strings.Contains(authErr.Description, "user declined") {
		t.Errorf("error description = %q, want the server's description", authErr.Description)
	}

	entries, err := h.store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("a denied flow persisted %d tokens, want 0", len(entries))
	}
}

func TestCodeFlow_StateMismatch(t *testing.T) {
	h := newAuthHarness(t, false)

	// exchangeCode stays nil: a forged callback must never reach the token
	// endpoint.
	var challenge atomic.Value
	auth := h.newAuthenticator(t,
		WithCallbackPort(freePort(t)),
		WithOutput(&bytes.Buffer{}),
		WithBrowserOpener(fakeBrowser(t, h, &challenge, func(redirectURI, state string) string {
			return redirectURI + "?code=test-code&state=forged"
		})),
	)

	_, err := auth.Login(context.Background(), h.server.URL)
	if err == nil {
		t.Fatal("Login accepted a callback with a forged state parameter")
	}
	if !strings.Contains(err.Error(), "state parameter mismatch") {
		t.Errorf("error = %v, want it to name the state mismatch", err)
	}
}

func TestCodeFlow_BrowserOpenFailure(t *testing.T) {
	h := newAuthHarness(t, false)

	var out bytes.Buffer
	auth := h.newAuthenticator(t,
		WithCallbackPort(freePort(t)),
		WithOutput(&out),
		WithCallbackTimeout(100*time.Millisecond),
		WithBrowserOpener(func(string) error {
			return fmt.Errorf("no display")
		}),
	)

	_, err := auth.Login(context.Background(), h.server.URL)
	if err == nil {
		t.Fatal("Login succeeded with no browser and no callback")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want a timeout", err)
	}

	// When the browser cannot open, the URL is printed so the user can paste
	// it themselves.
	if !strings.Contains(out.String(), "Visit this URL") {
		t.Errorf("output %q does not offer the sign-in URL", out.String())
	}
	if !strings.Contains(out.String(), "/authorize?") {
		t.Errorf("output %q does not contain the authorization URL", out.String())
	}
}

func TestDeviceFlow_EndToEnd(t *testing.T) {
	h := newAuthHarness(t, true)

	h.devicePoll = func(w http.ResponseWriter, r *http.Request) {
		if got := r.PostForm.Get("device_code"); got != "dev-code-1" {
			t.Errorf("poll got device_code %q, want dev-code-1", got)
		}
		if got := r.PostForm.Get("client_id"); got != "dyn-client" {
			t.Errorf("poll got client_id %q, want dyn-client", got)
		}
		writeJSON(t, w, map[string]any{
			"access_token":  "device-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "device-refresh",
		})
	}

	var out bytes.Buffer
	var notified DeviceNotification
	auth := h.newAuthenticator(t,
		WithPreferDeviceFlow(true),
		WithOutput(&out),
		WithDeviceNotifier(func(ctx context.Context, n DeviceNotification) error {
			notified = n
			return nil
		}),
	)

	token, err := auth.Login(context.Background(), h.server.URL)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token.AccessToken != "device-access" {
		t.Errorf("Login access token = %q, want device-access", token.AccessToken)
	}

	for _, want := range []string{"WDJB-MJHT", "Waiting for approval", "Authentication complete."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q does not mention %q", out.String(), want)
		}
	}
	// The device code authenticates the poll. It must never be shown or
	// forwarded anywhere.
	if strings.Contains(out.String(), "dev-code-1") {
		t.Error("output leaks the device code")
	}

	if notified.UserCode != "WDJB-MJHT" {
		t.Errorf("notifier got user code %q, want WDJB-MJHT", notified.UserCode)
	}
	if notified.VerificationURI == "" || notified.VerificationURIComplete == "" {
		t.Errorf("notifier got incomplete verification URIs: %+v", notified)
	}
	if notified.ExpiresIn != 900 {
		t.Errorf("notifier got expires_in %d, want 900", notified.ExpiresIn)
	}

	stored, err := h.store.Load(h.server.URL)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stored == nil || stored.AccessToken != "device-access" {
		t.Errorf("stored token = %+v, want the device-flow token persisted", stored)
	}
}

func TestDeviceFlow_NotifierFailureIsTolerated(t *testing.T) {
	h := newAuthHarness(t, true)

	h.devicePoll = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"access_token": "device-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}

	auth := h.newAuthenticator(t,
		WithPreferDeviceFlow(true),
		WithOutput(&bytes.Buffer{}),
		WithDeviceNotifier(func(ctx context.Context, n DeviceNotification) error {
			return fmt.Errorf("webhook down")
		}),
	)

	token, err := auth.Login(context.Background(), h.server.URL)
	if err != nil {
		t.Fatalf("Login failed even though only the notifier broke: %v", err)
	}
	if token.AccessToken != "device-access" {
		t.Errorf("Login access token = %q, want device-access", token.AccessToken)
	}
}
