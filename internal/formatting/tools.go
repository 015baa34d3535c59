package formatting

import (
	"fmt"
	"io"
	"sort"

	pkgstrings "cleat/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mark3labs/mcp-go/mcp"
)

// wideDescriptionMaxLen is the description truncation length in wide mode,
// where the extra ARGS column leaves less room.
const wideDescriptionMaxLen = 50

// toolListItem represents a tool in list output format.
type toolListItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WriteTools renders a tool listing in the requested format. Tools are
// sorted by name for consistent output.
func WriteTools(w io.Writer, tools []mcp.Tool, format OutputFormat, noHeaders bool) error {
	if len(tools) == 0 {
		_, err := fmt.Fprintln(w, "No tools found")
		return err
	}

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})

	if format == OutputFormatJSON || format == OutputFormatYAML {
		items := make([]toolListItem, len(tools))
		for i, tool := range tools {
			items[i] = toolListItem{
				Name:        tool.Name,
				Description: tool.Description,
			}
		}
		if format == OutputFormatJSON {
			return writeJSON(w, items)
		}
		return writeYAML(w, items)
	}

	t := newTable(w)
	isWide := format == OutputFormatWide
	if !noHeaders {
		if isWide {
			t.AppendHeader(table.Row{"NAME", "DESCRIPTION", "ARGS"})
		} else {
			t.AppendHeader(table.Row{"NAME", "DESCRIPTION"})
		}
	}

	for _, tool := range tools {
		if isWide {
			t.AppendRow(table.Row{
				tool.Name,
				pkgstrings.TruncateDescription(tool.Description, wideDescriptionMaxLen),
				describeToolArgs(tool),
			})
		} else {
			t.AppendRow(table.Row{
				tool.Name,
				pkgstrings.TruncateDescription(tool.Description, pkgstrings.DefaultDescriptionMaxLen),
			})
		}
	}
	t.Render()

	// Summary line, skipped in scripting mode
	if !noHeaders {
		_, err := fmt.Fprintf(w, "\n%s\n", pluralize(len(tools), "tool"))
		return err
	}
	return nil
}

// WriteToolDetail renders one tool with its full input schema.
func WriteToolDetail(w io.Writer, tool mcp.Tool, format OutputFormat) error {
	switch format {
	case OutputFormatJSON:
		return writeJSON(w, tool)
	case OutputFormatYAML:
		return writeYAML(w, tool)
	}

	fmt.Fprintf(w, "Tool: %s\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", tool.Description)
	}
	if len(tool.InputSchema.Properties) > 0 {
		fmt.Fprintln(w, "Input Schema:")
		fmt.Fprintln(w, PrettyJSON(tool.InputSchema))
	}
	return nil
}

// describeToolArgs summarizes a tool's argument count, noting how many
// are required.
func describeToolArgs(tool mcp.Tool) string {
	count := len(tool.InputSchema.Properties)
	if count == 0 {
		return "-"
	}
	if req := len(tool.InputSchema.Required); req > 0 {
		return fmt.Sprintf("%d (%d req)", count, req)
	}
	return fmt.Sprintf("%d", count)
}
