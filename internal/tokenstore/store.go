package tokenstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cleat/pkg/logging"
	"cleat/pkg/oauth"
)

// defaultDirName is the token directory under the user config dir.
const defaultDirName = "cleat/tokens"

// Entry is the persisted form of one server's token: the token set plus the
// server URL it belongs to, so listings can name the server without reversing
// the filename hash.
type Entry struct {
	ServerURL string          `json:"server_url"`
	Token     *oauth.TokenSet `json:"token"`
}

// Store persists token sets on disk, one file per server.
//
// SECURITY: token files hold live credentials. The directory is created with
// 0700 and files with 0600 permissions, and token values are never logged.
type Store struct {
	mu  sync.Mutex
	dir string
}

// DefaultDir returns the default token directory under the user config dir.
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(configDir, defaultDirName), nil
}

// NewStore creates a token store rooted at dir, creating the directory if
// needed. An empty dir selects DefaultDir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory %s: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path a token for serverURL is stored at.
func (s *Store) Path(serverURL string) string {
	return filepath.Join(s.dir, key(serverURL)+".json")
}

// key maps a server URL to a filesystem-safe name. Different spellings of
// the same server share a key.
func key(serverURL string) string {
	hash := sha256.Sum256([]byte(oauth.NormalizeServerURL(serverURL)))
	return hex.EncodeToString(hash[:16])
}

// Save persists a token set for a server, overwriting any previous one.
func (s *Store) Save(serverURL string, token *oauth.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		ServerURL: oauth.NormalizeServerURL(serverURL),
		Token:     token,
	}

	data, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token for %s: %w", serverURL, err)
	}

	path := s.Path(serverURL)
	if err := os.WriteFile(path, data, 0600); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "token_save",
			Outcome: "failure",
			Target:  entry.ServerURL,
		})
		return fmt.Errorf("failed to write token file: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_save",
		Outcome: "success",
		Target:  entry.ServerURL,
	})
	return nil
}

// Load returns the persisted token for a server, or nil when none is stored.
// A corrupt or unreadable file is treated as absent after a warning, so a
// damaged store degrades to re-authentication.
func (s *Store) Load(serverURL string) (*oauth.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(serverURL)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		logging.Warn("TokenStore", "Failed to read token file for %s: %v", serverURL, err)
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Token == nil || entry.Token.AccessToken == "" {
		logging.Warn("TokenStore", "Ignoring corrupt token file %s", path)
		return nil, nil
	}

	return entry.Token, nil
}

// Delete removes the persisted token for a server. Deleting an absent token
// is not an error.
func (s *Store) Delete(serverURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path(serverURL))
	if err != nil && !os.IsNotExist(err) {
		logging.Audit(logging.AuditEvent{
			Action:  "token_delete",
			Outcome: "failure",
			Target:  oauth.NormalizeServerURL(serverURL),
		})
		return fmt.Errorf("failed to delete token file: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "token_delete",
		Outcome: "success",
		Target:  oauth.NormalizeServerURL(serverURL),
	})
	return nil
}

// Clear removes every stored token and returns how many were deleted.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read token directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	logging.Audit(logging.AuditEvent{
		Action:  "tokens_clear",
		Outcome: "success",
	})
	return removed, nil
}

// List returns every stored token entry in directory order. Corrupt files
// are skipped with a warning.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, de.Name()))
		if err != nil {
			logging.Warn("TokenStore", "Failed to read %s: %v", de.Name(), err)
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.Token == nil {
			logging.Warn("TokenStore", "Skipping corrupt token file %s", de.Name())
			continue
		}
		if entry.ServerURL == "" {
			entry.ServerURL = strings.TrimSuffix(de.Name(), ".json")
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
