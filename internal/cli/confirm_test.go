package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
		wantPrompt string
	}{
		{"yes", "y\n", false, true, "[y/N]"},
		{"yes word", "yes\n", false, true, "[y/N]"},
		{"yes uppercase", "Y\n", false, true, "[y/N]"},
		{"no", "n\n", true, false, "[Y/n]"},
		{"empty takes default no", "\n", false, false, "[y/N]"},
		{"empty takes default yes", "\n", true, true, "[Y/n]"},
		{"garbage declines", "maybe\n", true, false, "[Y/n]"},
		{"eof declines", "", true, false, "[Y/n]"},
		{"surrounding whitespace", "  y  \n", false, true, "[y/N]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := Confirm(strings.NewReader(tt.input), &out, "Delete everything?", tt.defaultYes)

			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Delete everything?") {
				t.Error("expected prompt to be written")
			}
			if !strings.Contains(out.String(), tt.wantPrompt) {
				t.Errorf("expected prompt to contain %q, got %q", tt.wantPrompt, out.String())
			}
		})
	}

	t.Run("unterminated line still accepted", func(t *testing.T) {
		var out bytes.Buffer
		if !Confirm(strings.NewReader("y"), &out, "Proceed?", false) {
			t.Error("expected final line without newline to be read")
		}
	})
}
