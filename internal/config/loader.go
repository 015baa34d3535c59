package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"cleat/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "CLEAT_CONFIG_PATH"

	// EnvEndpoint configures an implicit server named "default" when the
	// config file defines none.
	EnvEndpoint = "CLEAT_ENDPOINT"
)

// Load reads the configuration from path. An empty path falls back to
// CLEAT_CONFIG_PATH and then the default location. A missing file yields
// the defaults; a malformed file or an unknown key is an error.
func Load(path string) (Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("Config", "No config file at %s, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config from %s: %w", path, err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse config from %s: %w", path, err)
		}
		logging.Debug("Config", "Loaded configuration from %s", path)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	return DefaultPath()
}

// applyEnv layers environment overrides onto the decoded config.
func applyEnv(cfg *Config) {
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" && len(cfg.Servers) == 0 {
		logging.Debug("Config", "Using endpoint %s from %s", endpoint, EnvEndpoint)
		cfg.Servers = append(cfg.Servers, ServerConfig{
			Name: "default",
			URL:  endpoint,
		})
	}
}
