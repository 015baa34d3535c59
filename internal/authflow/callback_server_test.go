package authflow

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestCallbackServer(t *testing.T) (*CallbackServer, string) {
	t.Helper()

	// Port 0 lets the OS assign a free port, so parallel test runs never
	// collide on a fixed one.
	server := NewCallbackServer(0)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	callbackURL, err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(server.Stop)

	return server, callbackURL
}

func TestCallbackServer_Start(t *testing.T) {
	server, callbackURL := startTestCallbackServer(t)

	if !strings.HasSuffix(callbackURL, "/callback") {
		t.Errorf("callback URL = %q, want /callback suffix", callbackURL)
	}
	if !strings.Contains(callbackURL, "localhost") {
		t.Errorf("callback URL = %q, want localhost host", callbackURL)
	}
	if server.Port() == 0 {
		t.Error("Port() = 0 after Start")
	}
	if server.RedirectURI() != callbackURL {
		t.Errorf("RedirectURI() = %q, want %q", server.RedirectURI(), callbackURL)
	}
}

func TestCallbackServer_SuccessCallback(t *testing.T) {
	server, callbackURL := startTestCallbackServer(t)

	go func() {
		resp, err := http.Get(callbackURL + "?code=auth-code-1&state=state-1")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "Authentication complete") {
			t.Errorf("success page = %q, want completion message", string(body))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if result.IsError() {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Code != "auth-code-1" {
		t.Errorf("Code = %q, want auth-code-1", result.Code)
	}
	if result.State != "state-1" {
		t.Errorf("State = %q, want state-1", result.State)
	}
}

func TestCallbackServer_ErrorCallback(t *testing.T) {
	server, callbackURL := startTestCallbackServer(t)

	go func() {
		resp, err := http.Get(callbackURL + "?error=access_denied&error_description=user+cancelled")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "access_denied") {
			t.Errorf("error page = %q, want the error code shown", string(body))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if !result.IsError() {
		t.Fatalf("result = %+v, want error", result)
	}
	if result.Error != "access_denied" {
		t.Errorf("Error = %q", result.Error)
	}
	if result.ErrorDescription != "user cancelled" {
		t.Errorf("ErrorDescription = %q", result.ErrorDescription)
	}
}

func TestCallbackServer_SecondCallbackRejected(t *testing.T) {
	server, callbackURL := startTestCallbackServer(t)

	resp1, err := http.Get(callbackURL + "?code=first&state=s")
	if err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusOK {
		t.Errorf("first callback status = %d, want 200", resp1.StatusCode)
	}

	resp2, err := http.Get(callbackURL + "?code=replayed&state=s")
	if err != nil {
		t.Fatalf("second callback failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("second callback status = %d, want 400", resp2.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if result.Code != "first" {
		t.Errorf("Code = %q, want the first callback's code", result.Code)
	}
}

func TestCallbackServer_WaitCancelled(t *testing.T) {
	server, _ := startTestCallbackServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := server.WaitForCallback(ctx)
	if err != context.Canceled {
		t.Errorf("WaitForCallback error = %v, want context.Canceled", err)
	}
}

func TestCallbackServer_ContextStopsServer(t *testing.T) {
	server := NewCallbackServer(0)

	ctx, cancel := context.WithCancel(context.Background())
	callbackURL, err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	// The listener should wind down shortly after cancellation.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get(callbackURL); err != nil {
			return // connection refused: server is down
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("callback server still serving after context cancellation")
}
