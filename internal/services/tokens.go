package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists the tracker's OAuth token between runs.
type TokenStore interface {
	// Load returns the stored token, or nil when none has been saved.
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}

// FileTokenStore keeps the token in a JSON file readable only by the owner.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the token file. A missing file is not an error.
func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trakt token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode trakt token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, nil
	}
	return &token, nil
}

// Save writes the token with 0600 permissions, creating the parent directory if needed.
func (s *FileTokenStore) Save(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("refusing to save empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trakt token: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write trakt token: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("restrict trakt token: %w", err)
	}
	return nil
}

// persistingSource saves every token its parent hands out that differs from the last one seen,
// so refreshed tokens survive restarts.
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.last {
		if err := p.store.Save(token); err != nil {
			return nil, err
		}
		p.last = token.AccessToken
	}
	return token, nil
}
