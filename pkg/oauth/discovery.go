package oauth

import (
	"context"
	"strings"
	"time"
)

// Discover runs two-step OAuth discovery for a tool server: fetch the
// protected resource metadata from the server's well-known location, pick the
// first advertised authorization server, and fetch that server's metadata
// (RFC 8414, falling back to OpenID Connect discovery).
//
// Results are cached per normalized server URL with a TTL, and concurrent
// discoveries for the same server are deduplicated.
func (c *Client) Discover(ctx context.Context, serverURL string) (*Config, error) {
	return c.discover(ctx, serverURL, "")
}

// DiscoverWithChallenge is like Discover but honors an authentication
// challenge's resource_metadata hint (RFC 9728): when the server's 401 names
// the metadata document, discovery fetches that URL instead of guessing the
// well-known location.
func (c *Client) DiscoverWithChallenge(ctx context.Context, serverURL string, challenge *AuthChallenge) (*Config, error) {
	hint := ""
	if challenge != nil {
		hint = challenge.ResourceMetadataURL
	}
	return c.discover(ctx, serverURL, hint)
}

func (c *Client) discover(ctx context.Context, serverURL, resourceMetadataURL string) (*Config, error) {
	root := NormalizeServerURL(serverURL)

	// Check cache first with read lock
	c.configMu.RLock()
	if entry, ok := c.configCache[root]; ok {
		if time.Since(entry.fetchedAt) < c.configTTL {
			c.configMu.RUnlock()
			return entry.config, nil
		}
	}
	c.configMu.RUnlock()

	// Use singleflight to deduplicate concurrent discoveries
	result, err, _ := c.configGroup.Do(root, func() (interface{}, error) {
		// Double-check cache after acquiring singleflight lock
		c.configMu.RLock()
		if entry, ok := c.configCache[root]; ok {
			if time.Since(entry.fetchedAt) < c.configTTL {
				c.configMu.RUnlock()
				return entry.config, nil
			}
		}
		c.configMu.RUnlock()

		cfg, err := c.doDiscover(ctx, root, resourceMetadataURL)
		if err != nil {
			return nil, err
		}
		c.cacheConfig(root, cfg)
		return cfg, nil
	})

	if err != nil {
		return nil, err
	}

	return result.(*Config), nil
}

// doDiscover performs the actual two-step discovery.
func (c *Client) doDiscover(ctx context.Context, root, resourceMetadataURL string) (*Config, error) {
	prmURL := resourceMetadataURL
	if prmURL == "" {
		prmURL = root + wellKnownProtectedResource
	}

	var prm ProtectedResourceMetadata
	if err := c.getJSON(ctx, prmURL, &prm); err != nil {
		return nil, &DiscoveryError{
			ServerURL: root,
			URL:       prmURL,
			Reason:    "failed to fetch protected resource metadata",
			Err:       err,
		}
	}

	if prm.Resource == "" {
		return nil, &DiscoveryError{
			ServerURL: root,
			URL:       prmURL,
			Reason:    `protected resource metadata is missing "resource"`,
		}
	}
	if len(prm.AuthorizationServers) == 0 {
		return nil, &DiscoveryError{
			ServerURL: root,
			URL:       prmURL,
			Reason:    "protected resource metadata lists no authorization servers",
		}
	}

	// First authorization server wins.
	authServer := strings.TrimSuffix(prm.AuthorizationServers[0], "/")

	metadata, metadataURL, err := c.fetchAuthServerMetadata(ctx, authServer)
	if err != nil {
		return nil, &DiscoveryError{
			ServerURL: root,
			URL:       metadataURL,
			Reason:    "failed to fetch authorization server metadata",
			Err:       err,
		}
	}

	if metadata.AuthorizationEndpoint == "" {
		return nil, &DiscoveryError{
			ServerURL: root,
			URL:       metadataURL,
			Reason:    `authorization server metadata is missing "authorization_endpoint"`,
		}
	}
	if metadata.TokenEndpoint == "" {
		return nil, &DiscoveryError{
			ServerURL: root,
			URL:       metadataURL,
			Reason:    `authorization server metadata is missing "token_endpoint"`,
		}
	}

	cfg := &Config{
		Metadata:            metadata,
		ServerURL:           root,
		Resource:            prm.Resource,
		AuthorizationServer: authServer,
		ResourceScopes:      prm.ScopesSupported,
	}

	c.logger.Debug("OAuth discovery complete",
		"server", root,
		"authorization_server", authServer,
		"authorization_endpoint", metadata.AuthorizationEndpoint,
		"token_endpoint", metadata.TokenEndpoint,
		"device_flow", cfg.SupportsDeviceFlow())

	return cfg, nil
}

// fetchAuthServerMetadata fetches authorization server metadata, trying
// RFC 8414 first and falling back to OpenID Connect discovery. It returns the
// metadata together with the URL it came from.
func (c *Client) fetchAuthServerMetadata(ctx context.Context, issuer string) (*Metadata, string, error) {
	rfcURL := issuer + wellKnownAuthServer

	var metadata Metadata
	err := c.getJSON(ctx, rfcURL, &metadata)
	if err == nil {
		return &metadata, rfcURL, nil
	}

	c.logger.Debug("RFC 8414 metadata fetch failed, trying OpenID Connect discovery",
		"issuer", issuer,
		"error", err)

	oidcURL := issuer + wellKnownOpenIDConfig
	metadata = Metadata{}
	if err := c.getJSON(ctx, oidcURL, &metadata); err != nil {
		return nil, oidcURL, err
	}

	return &metadata, oidcURL, nil
}

// cacheConfig stores a discovery result in the cache.
func (c *Client) cacheConfig(root string, cfg *Config) {
	c.configMu.Lock()
	c.configCache[root] = &configCacheEntry{
		config:    cfg,
		fetchedAt: time.Now(),
	}
	c.configMu.Unlock()
}
