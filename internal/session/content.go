package session

import (
	"encoding/base64"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Content is one item of a tool result. It is a closed sum of
// TextContent, BinaryContent, and OtherContent, so callers can switch
// over result items without knowing the wire-level content taxonomy.
type Content interface {
	isContent()
}

// TextContent is a plain text result item.
type TextContent struct {
	Text string
}

// BinaryContent is a decoded image or audio result item.
type BinaryContent struct {
	MIMEType string
	Data     []byte
}

// OtherContent preserves result items this layer does not interpret,
// such as embedded resources, in their wire form.
type OtherContent struct {
	Raw mcp.Content
}

func (TextContent) isContent()   {}
func (BinaryContent) isContent() {}
func (OtherContent) isContent()  {}

// ContentsFromResult unpacks a wire-level tool result into the Content
// sum. Base64 payloads are decoded; an item whose payload fails to decode
// is preserved as OtherContent rather than dropped.
func ContentsFromResult(result *mcp.CallToolResult) []Content {
	if result == nil {
		return nil
	}

	contents := make([]Content, 0, len(result.Content))
	for _, item := range result.Content {
		if textContent, ok := mcp.AsTextContent(item); ok {
			contents = append(contents, TextContent{Text: textContent.Text})
		} else if imageContent, ok := mcp.AsImageContent(item); ok {
			contents = append(contents, decodeBinary(item, imageContent.MIMEType, imageContent.Data))
		} else if audioContent, ok := mcp.AsAudioContent(item); ok {
			contents = append(contents, decodeBinary(item, audioContent.MIMEType, audioContent.Data))
		} else {
			contents = append(contents, OtherContent{Raw: item})
		}
	}
	return contents
}

func decodeBinary(item mcp.Content, mimeType, encoded string) Content {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return OtherContent{Raw: item}
	}
	return BinaryContent{MIMEType: mimeType, Data: data}
}

// FirstText returns the first text item of a tool result, or the empty
// string when the result has none.
func FirstText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, item := range result.Content {
		if textContent, ok := mcp.AsTextContent(item); ok {
			return textContent.Text
		}
	}
	return ""
}

// resultErrorMessage joins the text items of a failed tool result into one
// message for a ToolExecutionError.
func resultErrorMessage(result *mcp.CallToolResult) string {
	var msgs []string
	for _, item := range result.Content {
		if textContent, ok := mcp.AsTextContent(item); ok && textContent.Text != "" {
			msgs = append(msgs, textContent.Text)
		}
	}
	if len(msgs) == 0 {
		return "tool reported an error without details"
	}
	return strings.Join(msgs, "; ")
}
