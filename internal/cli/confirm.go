package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks a yes/no question and reads one line of input. An empty
// answer takes the default; anything other than y/yes (case-insensitive)
// declines. A read failure declines, so EOF on a non-interactive stdin
// never confirms a destructive action.
func Confirm(r io.Reader, w io.Writer, prompt string, defaultYes bool) bool {
	if defaultYes {
		fmt.Fprintf(w, "%s [Y/n]: ", prompt)
	} else {
		fmt.Fprintf(w, "%s [y/N]: ", prompt)
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	response := strings.ToLower(strings.TrimSpace(line))
	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
