package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	configDirName  = "cleat"
	configFileName = "config.yaml"

	// DefaultLogLevel applies when the config does not set one.
	DefaultLogLevel = "info"
)

// DefaultPath returns the default config file location under the user
// config directory.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(configDir, configDirName, configFileName), nil
}

// DefaultLogDir returns the default directory for subprocess tool-server
// logs.
func DefaultLogDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(configDir, configDirName, "logs"), nil
}

// defaultConfig returns the configuration used when no file exists.
func defaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
	}
}

// applyDefaults fills in inferable fields after decoding.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	for i := range cfg.Servers {
		srv := &cfg.Servers[i]
		if srv.Transport == "" {
			switch {
			case srv.URL != "":
				srv.Transport = TransportHTTP
			case srv.Command != "":
				srv.Transport = TransportStdio
			}
		}
		if srv.Auth.Mode == "" {
			switch {
			case srv.Auth.Token != "":
				srv.Auth.Mode = AuthModeToken
			case srv.Transport == TransportHTTP:
				srv.Auth.Mode = AuthModeOAuth
			default:
				srv.Auth.Mode = AuthModeNone
			}
		}
	}
}
