package authflow

import (
	"os/exec"
	"strings"
	"testing"
)

func TestOpenBrowser_RejectsEmptyURL(t *testing.T) {
	err := OpenBrowser("")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
	if !strings.Contains(err.Error(), "cannot be empty") {
		t.Errorf("error = %q, want mention of empty URL", err.Error())
	}
}

func TestOpenBrowser_RejectsNonHTTPSchemes(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"file scheme", "file:///etc/passwd"},
		{"javascript scheme", "javascript:alert(1)"},
		{"data scheme", "data:text/html,<script>alert(1)</script>"},
		{"no scheme", "example.com"},
		{"custom scheme", "myapp://callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := OpenBrowser(tt.url)
			if err == nil {
				t.Fatalf("expected error for %s", tt.url)
			}
			if !strings.Contains(err.Error(), "invalid URL") {
				t.Errorf("error = %q, want invalid URL", err.Error())
			}
		})
	}
}

func TestOpenBrowser_AcceptsHTTPURLs(t *testing.T) {
	original := browserLauncher
	browserLauncher = func(cmd *exec.Cmd) error { return nil }
	defer func() { browserLauncher = original }()

	for _, url := range []string{
		"https://auth.example.com/authorize?client_id=123",
		"http://localhost:8889/test",
	} {
		if err := OpenBrowser(url); err != nil {
			t.Errorf("OpenBrowser(%q) error = %v", url, err)
		}
	}
}

func TestOpenBrowser_LauncherFailure(t *testing.T) {
	original := browserLauncher
	browserLauncher = func(cmd *exec.Cmd) error { return exec.ErrNotFound }
	defer func() { browserLauncher = original }()

	err := OpenBrowser("https://example.com")
	if err == nil {
		t.Fatal("expected error when launcher fails")
	}
	if !strings.Contains(err.Error(), "failed to open browser") {
		t.Errorf("error = %q", err.Error())
	}
}
