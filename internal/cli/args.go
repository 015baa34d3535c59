package cli

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseToolArgs turns key=value pairs into a tool argument map. Values that
// parse as JSON keep their type (numbers, booleans, null, nested objects and
// arrays); anything else is passed through as a string, so quoting plain
// text is never required.
func ParseToolArgs(pairs []string) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", pair)
		}
		args[key] = parseToolArgValue(value)
	}
	return args, nil
}

func parseToolArgValue(value string) interface{} {
	var parsed interface{}
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		return parsed
	}
	return value
}

// ParseToolArgsJSON parses a complete JSON object of tool arguments, the
// escape hatch for nested structures that are awkward as key=value pairs.
func ParseToolArgsJSON(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return args, nil
}
