package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestExchangeCode(t *testing.T) {
	var form url.Values

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-123",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "rt-456",
			"scope":         "openid tools",
		})
	})

	cfg := testConfig(server, nil)
	client := &RegisteredClient{ClientID: "public-client"}

	c := NewClient()
	token, err := c.ExchangeCode(context.Background(), cfg, client, "auth-code", "http://localhost:8889/callback", "verifier-xyz")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if form.Get("grant_type") != GrantTypeAuthorizationCode {
		t.Errorf("grant_type = %q", form.Get("grant_type"))
	}
	if form.Get("code") != "auth-code" {
		t.Errorf("code = %q", form.Get("code"))
	}
	if form.Get("redirect_uri") != "http://localhost:8889/callback" {
		t.Errorf("redirect_uri = %q", form.Get("redirect_uri"))
	}
	if form.Get("client_id") != "public-client" {
		t.Errorf("client_id = %q", form.Get("client_id"))
	}
	if form.Get("code_verifier") != "verifier-xyz" {
		t.Errorf("code_verifier = %q", form.Get("code_verifier"))
	}
	if _, present := form["client_secret"]; present {
		t.Error("client_secret sent for a public client")
	}

	if token.AccessToken != "at-123" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
	if token.RefreshToken != "rt-456" {
		t.Errorf("RefreshToken = %q", token.RefreshToken)
	}
	if token.ClientID != "public-client" {
		t.Errorf("ClientID = %q, want registration carried onto the token", token.ClientID)
	}
	if token.IssuedAt.IsZero() {
		t.Error("IssuedAt is zero")
	}
	if time.Since(token.IssuedAt) > time.Minute {
		t.Errorf("IssuedAt = %v, want roughly now", token.IssuedAt)
	}
}

func TestExchangeCode_ConfidentialClient(t *testing.T) {
	var form url.Values

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "at", "token_type": "Bearer"})
	})

	cfg := testConfig(server, nil)
	client := &RegisteredClient{ClientID: "conf-client", ClientSecret: "s3cret"}

	c := NewClient()
	token, err := c.ExchangeCode(context.Background(), cfg, client, "code", "http://localhost:8889/callback", "v")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if form.Get("client_secret") != "s3cret" {
		t.Errorf("client_secret = %q, want s3cret", form.Get("client_secret"))
	}
	if token.ClientSecret != "s3cret" {
		t.Error("client secret not carried onto the token for later refresh")
	}
}

func TestExchangeCode_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Code: "invalid_grant", Description: "code expired"})
	})

	cfg := testConfig(server, nil)
	c := NewClient()

	_, err := c.ExchangeCode(context.Background(), cfg, &RegisteredClient{ClientID: "x"}, "stale", "http://localhost:8889/callback", "v")
	if err == nil {
		t.Fatal("ExchangeCode() error = nil, want *AuthorizationError")
	}
	var ae *AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %T, want *AuthorizationError", err)
	}
	if ae.Code != "invalid_grant" {
		t.Errorf("Code = %q, want invalid_grant", ae.Code)
	}
}

func TestRefresh(t *testing.T) {
	t.Run("carries credentials and replaces token", func(t *testing.T) {
		var form url.Values

		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			form = r.PostForm
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "new-at",
				"token_type":    "Bearer",
				"expires_in":    1800,
				"refresh_token": "new-rt",
				"scope":         "narrower",
			})
		})

		cfg := testConfig(server, nil)
		c := NewClient()

		old := &TokenSet{
			AccessToken:  "old-at",
			RefreshToken: "old-rt",
			Scope:        "openid tools",
			ClientID:     "cid",
			ClientSecret: "csecret",
		}

		refreshed, err := c.Refresh(context.Background(), cfg, old)
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}

		if form.Get("grant_type") != GrantTypeRefreshToken {
			t.Errorf("grant_type = %q", form.Get("grant_type"))
		}
		if form.Get("refresh_token") != "old-rt" {
			t.Errorf("refresh_token = %q", form.Get("refresh_token"))
		}
		if form.Get("client_id") != "cid" {
			t.Errorf("client_id = %q", form.Get("client_id"))
		}
		if form.Get("client_secret") != "csecret" {
			t.Errorf("client_secret = %q", form.Get("client_secret"))
		}

		if refreshed.AccessToken != "new-at" {
			t.Errorf("AccessToken = %q", refreshed.AccessToken)
		}
		if refreshed.RefreshToken != "new-rt" {
			t.Errorf("RefreshToken = %q, want rotation honored", refreshed.RefreshToken)
		}
		if refreshed.Scope != "narrower" {
			t.Errorf("Scope = %q", refreshed.Scope)
		}
		if refreshed.ClientID != "cid" || refreshed.ClientSecret != "csecret" {
			t.Error("client credentials not carried forward onto the refreshed token")
		}
	})

	t.Run("keeps old refresh token and scope when omitted", func(t *testing.T) {
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "new-at",
				"token_type":   "Bearer",
			})
		})

		cfg := testConfig(server, nil)
		c := NewClient()

		old := &TokenSet{AccessToken: "old-at", RefreshToken: "old-rt", Scope: "openid"}
		refreshed, err := c.Refresh(context.Background(), cfg, old)
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if refreshed.RefreshToken != "old-rt" {
			t.Errorf("RefreshToken = %q, want old-rt carried forward", refreshed.RefreshToken)
		}
		if refreshed.Scope != "openid" {
			t.Errorf("Scope = %q, want openid carried forward", refreshed.Scope)
		}
	})

	t.Run("rejects token without refresh token", func(t *testing.T) {
		c := NewClient()
		cfg := &Config{Metadata: &Metadata{TokenEndpoint: "https://as.example.com/token"}, ServerURL: "https://mcp.example.com"}

		_, err := c.Refresh(context.Background(), cfg, &TokenSet{AccessToken: "at"})
		if err == nil {
			t.Fatal("Refresh() error = nil, want error for non-refreshable token")
		}
	})

	t.Run("invalid grant surfaces as authorization error", func(t *testing.T) {
		mux := http.NewServeMux()
		server := httptest.NewServer(mux)
		defer server.Close()

		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{Code: "invalid_grant"})
		})

		cfg := testConfig(server, nil)
		c := NewClient()

		_, err := c.Refresh(context.Background(), cfg, &TokenSet{AccessToken: "at", RefreshToken: "revoked"})
		var ae *AuthorizationError
		if !errors.As(err, &ae) {
			t.Fatalf("error = %T (%v), want *AuthorizationError", err, err)
		}
	})
}

func TestBuildAuthorizationURL(t *testing.T) {
	cfg := &Config{
		Metadata: &Metadata{
			AuthorizationEndpoint: "https://as.example.com/authorize",
		},
	}
	pkce := &PKCEChallenge{
		CodeVerifier:        "verifier",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: CodeChallengeMethodS256,
	}

	c := NewClient()
	rawURL, err := c.BuildAuthorizationURL(cfg, "cid", "http://localhost:8889/callback", "state-1", "openid tools", pkce)
	if err != nil {
		t.Fatalf("BuildAuthorizationURL() error = %v", err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	q := parsed.Query()

	checks := map[string]string{
		"response_type":         "code",
		"client_id":             "cid",
		"redirect_uri":          "http://localhost:8889/callback",
		"state":                 "state-1",
		"scope":                 "openid tools",
		"code_challenge":        "challenge",
		"code_challenge_method": "S256",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	t.Run("omits empty scope", func(t *testing.T) {
		rawURL, err := c.BuildAuthorizationURL(cfg, "cid", "http://localhost:8889/callback", "state-1", "", nil)
		if err != nil {
			t.Fatalf("BuildAuthorizationURL() error = %v", err)
		}
		parsed, _ := url.Parse(rawURL)
		if _, present := parsed.Query()["scope"]; present {
			t.Error("scope parameter present despite empty scope")
		}
		if _, present := parsed.Query()["code_challenge"]; present {
			t.Error("code_challenge parameter present despite nil PKCE")
		}
	})
}
