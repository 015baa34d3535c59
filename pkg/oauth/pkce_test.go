package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"golang.org/x/oauth2"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	// 32 random bytes base64url-encode to 43 characters without padding.
	if len(pkce.CodeVerifier) != 43 {
		t.Errorf("CodeVerifier length = %d, want 43", len(pkce.CodeVerifier))
	}
	if pkce.CodeChallengeMethod != CodeChallengeMethodS256 {
		t.Errorf("CodeChallengeMethod = %q, want %q", pkce.CodeChallengeMethod, CodeChallengeMethodS256)
	}

	// The challenge must be the S256 transform of the verifier.
	sum := sha256.Sum256([]byte(pkce.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if pkce.CodeChallenge != want {
		t.Errorf("CodeChallenge = %q, want %q", pkce.CodeChallenge, want)
	}

	// Cross-check against the x/oauth2 implementation.
	if got := oauth2.S256ChallengeFromVerifier(pkce.CodeVerifier); got != pkce.CodeChallenge {
		t.Errorf("challenge disagrees with oauth2.S256ChallengeFromVerifier: %q vs %q", pkce.CodeChallenge, got)
	}
}

func TestGeneratePKCE_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		pkce, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE() error = %v", err)
		}
		if seen[pkce.CodeVerifier] {
			t.Fatalf("duplicate verifier generated: %q", pkce.CodeVerifier)
		}
		seen[pkce.CodeVerifier] = true
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if len(state) != 43 {
		t.Errorf("state length = %d, want 43", len(state))
	}
	if _, err := base64.RawURLEncoding.DecodeString(state); err != nil {
		t.Errorf("state is not valid base64url: %v", err)
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if state == other {
		t.Error("two GenerateState() calls returned the same value")
	}
}
