package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the default maximum length for tool
// descriptions in table output.
const DefaultDescriptionMaxLen = 60

// ellipsis is appended to truncated strings.
const ellipsis = "..."

// minTruncateLen is the smallest useful maxLen: one character plus the ellipsis.
const minTruncateLen = len(ellipsis) + 1

// OneLine collapses a multi-line string into a single line, replacing runs of
// whitespace (including newlines and tabs) with single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most maxLen characters, appending "..." when
// content was cut. It operates on runes so multi-byte characters are never
// split. maxLen values below 4 are clamped to 4.
func Truncate(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}

// TruncateDescription sanitizes a description for single-line table output:
// newlines become spaces, whitespace runs collapse, and the result is
// truncated to maxLen with a trailing "..." when cut.
func TruncateDescription(s string, maxLen int) string {
	return Truncate(OneLine(s), maxLen)
}
