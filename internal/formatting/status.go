package formatting

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Authentication states shown by `cleat auth status`.
const (
	StateAuthenticated   = "authenticated"
	StateExpired         = "expired"
	StateUnauthenticated = "unauthenticated"
	StateNoAuth          = "none"
	StateError           = "error"
)

// AuthStatus is one server's row in the auth status report.
type AuthStatus struct {
	Server      string     `json:"server"`
	Endpoint    string     `json:"endpoint,omitempty"`
	State       string     `json:"state"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Refreshable bool       `json:"refreshable"`
	Error       string     `json:"error,omitempty"`
}

// WriteAuthStatuses renders the per-server auth status report in the
// requested format. Rows are sorted by server name.
func WriteAuthStatuses(w io.Writer, statuses []AuthStatus, format OutputFormat, noHeaders bool) error {
	if len(statuses) == 0 {
		_, err := fmt.Fprintln(w, "No servers configured")
		return err
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Server < statuses[j].Server
	})

	if format == OutputFormatJSON {
		return writeJSON(w, statuses)
	}
	if format == OutputFormatYAML {
		return writeYAML(w, statuses)
	}

	t := newTable(w)
	isWide := format == OutputFormatWide
	if !noHeaders {
		if isWide {
			t.AppendHeader(table.Row{"SERVER", "ENDPOINT", "STATE", "EXPIRES", "REFRESH"})
		} else {
			t.AppendHeader(table.Row{"SERVER", "STATE", "EXPIRES", "REFRESH"})
		}
	}

	for _, st := range statuses {
		if isWide {
			t.AppendRow(table.Row{st.Server, valueOrDash(st.Endpoint), colorState(st.State), formatTTL(st.ExpiresAt), yesNo(st.Refreshable)})
		} else {
			t.AppendRow(table.Row{st.Server, colorState(st.State), formatTTL(st.ExpiresAt), yesNo(st.Refreshable)})
		}
	}
	t.Render()

	if !noHeaders {
		writeAttentionNotes(w, statuses)
	}
	return nil
}

// writeAttentionNotes lists servers whose probe failed, with the error text
// that the table omits.
func writeAttentionNotes(w io.Writer, statuses []AuthStatus) {
	var notes []string
	for _, st := range statuses {
		if st.Error != "" {
			notes = append(notes, fmt.Sprintf("  %s: %s", st.Server, st.Error))
		}
	}
	if len(notes) == 0 {
		return
	}
	fmt.Fprintln(w, "\nServers requiring attention:")
	for _, note := range notes {
		fmt.Fprintln(w, note)
	}
}

// colorState applies status coloring for table output.
func colorState(state string) string {
	switch state {
	case StateAuthenticated:
		return text.FgGreen.Sprint(state)
	case StateExpired, StateUnauthenticated:
		return text.FgYellow.Sprint(state)
	case StateError:
		return text.FgRed.Sprint(state)
	default:
		return state
	}
}

// formatTTL renders the time left on a token.
func formatTTL(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	d := time.Until(*t)
	switch {
	case d <= 0:
		return "expired"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
