// Package config loads and validates the cleat configuration file.
//
// The file lives at <user config dir>/cleat/config.yaml by default and
// can be relocated with the CLEAT_CONFIG_PATH environment variable. A
// missing file is not an error: cleat falls back to defaults, and the
// CLEAT_ENDPOINT variable can stand in for a one-server config. Unknown
// keys are rejected so typos surface as errors instead of silently
// ignored settings.
package config
