package formatting

import (
	"encoding/json"
	"fmt"
	"io"

	"cleat/internal/session"
)

// resultItem is the structured view of one content block. Binary payloads
// are summarized by type and size, never dumped.
type resultItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// WriteCallResult renders a tool call result. In table mode, text contents
// pass through verbatim and binary contents are summarized. In json/yaml
// mode, a result consisting of a single JSON text is re-rendered as
// structured data; anything else becomes a list of content blocks.
func WriteCallResult(w io.Writer, contents []session.Content, format OutputFormat) error {
	if len(contents) == 0 {
		_, err := fmt.Fprintln(w, "No results")
		return err
	}

	if format == OutputFormatJSON || format == OutputFormatYAML {
		if parsed, ok := parseSingleJSONText(contents); ok {
			if format == OutputFormatJSON {
				return writeJSON(w, parsed)
			}
			return writeYAML(w, parsed)
		}
		items := resultItems(contents)
		if format == OutputFormatJSON {
			return writeJSON(w, items)
		}
		return writeYAML(w, items)
	}

	for _, content := range contents {
		switch c := content.(type) {
		case session.TextContent:
			fmt.Fprintln(w, c.Text)
		case session.BinaryContent:
			fmt.Fprintf(w, "[binary %s, %s]\n", valueOrDash(c.MIMEType), humanBytes(len(c.Data)))
		case session.OtherContent:
			fmt.Fprintln(w, PrettyJSON(c.Raw))
		}
	}
	return nil
}

// parseSingleJSONText returns the decoded value when the result is exactly
// one text block containing valid JSON.
func parseSingleJSONText(contents []session.Content) (interface{}, bool) {
	if len(contents) != 1 {
		return nil, false
	}
	tc, ok := contents[0].(session.TextContent)
	if !ok {
		return nil, false
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(tc.Text), &parsed); err != nil {
		return nil, false
	}
	switch parsed.(type) {
	case map[string]interface{}, []interface{}:
		return parsed, true
	default:
		// Bare JSON scalars read better as plain text
		return nil, false
	}
}

func resultItems(contents []session.Content) []resultItem {
	items := make([]resultItem, 0, len(contents))
	for _, content := range contents {
		switch c := content.(type) {
		case session.TextContent:
			items = append(items, resultItem{Type: "text", Text: c.Text})
		case session.BinaryContent:
			items = append(items, resultItem{Type: "binary", MIMEType: c.MIMEType, Size: len(c.Data)})
		default:
			items = append(items, resultItem{Type: "other"})
		}
	}
	return items
}

// humanBytes renders a byte count with binary-prefix units.
func humanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := int64(n) / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
