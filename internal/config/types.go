package config

// Transport selects how a tool server is reached.
type Transport string

const (
	// TransportHTTP is a remote server over streamable HTTP.
	TransportHTTP Transport = "http"
	// TransportStdio is a subprocess server over stdio.
	TransportStdio Transport = "stdio"
)

// AuthMode selects how requests to a server are authenticated.
type AuthMode string

const (
	// AuthModeOAuth acquires tokens via OAuth discovery and the
	// interactive flows.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeToken uses a manually configured bearer token verbatim.
	AuthModeToken AuthMode = "token"
	// AuthModeNone sends no credentials.
	AuthModeNone AuthMode = "none"
)

// Config is the top-level configuration.
type Config struct {
	// TokenDir overrides where OAuth tokens are persisted.
	TokenDir string `yaml:"tokenDir,omitempty"`

	// LogDir overrides where subprocess tool-server logs are written.
	LogDir string `yaml:"logDir,omitempty"`

	// LogLevel filters diagnostic output (debug, info, warn, error).
	LogLevel string `yaml:"logLevel,omitempty"`

	// Servers are the configured tool servers.
	Servers []ServerConfig `yaml:"servers,omitempty"`
}

// ServerConfig describes one tool server.
type ServerConfig struct {
	// Name identifies the server in commands and logs.
	Name string `yaml:"name"`

	// Transport is http or stdio. Empty is inferred: a URL means http, a
	// command means stdio.
	Transport Transport `yaml:"transport,omitempty"`

	// URL is the streamable HTTP endpoint (http transport).
	URL string `yaml:"url,omitempty"`

	// Headers are extra HTTP headers sent with every request (http
	// transport).
	Headers map[string]string `yaml:"headers,omitempty"`

	// Command and Args launch the subprocess (stdio transport).
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	// Env holds additional environment variables for the subprocess, on
	// top of the inherited environment.
	Env map[string]string `yaml:"env,omitempty"`

	// Tools is the allow-list. Empty means every tool the server
	// advertises.
	Tools []string `yaml:"tools,omitempty"`

	// Auth configures authentication for the server.
	Auth AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig configures authentication for one server.
type AuthConfig struct {
	// Mode is oauth, token, or none. Empty is inferred: token when a
	// token is set, otherwise oauth for http servers and none for stdio
	// servers.
	Mode AuthMode `yaml:"mode,omitempty"`

	// Token is a manually supplied bearer token (mode token). It is used
	// verbatim and never refreshed.
	Token string `yaml:"token,omitempty"`

	// Scopes narrows the OAuth scopes requested during login. Empty
	// requests the scopes the server advertises.
	Scopes []string `yaml:"scopes,omitempty"`

	// CallbackPort overrides the local port for the browser callback.
	CallbackPort int `yaml:"callbackPort,omitempty"`

	// PreferDeviceFlow selects the device flow over the browser flow
	// when the server supports it.
	PreferDeviceFlow bool `yaml:"preferDeviceFlow,omitempty"`
}

// Server returns the named server configuration.
func (c *Config) Server(name string) (ServerConfig, bool) {
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return ServerConfig{}, false
}

// ServerNames returns the configured server names in order.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for _, srv := range c.Servers {
		names = append(names, srv.Name)
	}
	return names
}

// Remote reports whether the server uses the http transport.
func (s *ServerConfig) Remote() bool {
	return s.Transport == TransportHTTP
}
