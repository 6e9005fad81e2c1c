package spotify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
)

// TokenStore persists OAuth tokens between runs.
type TokenStore interface {
	// Load returns the stored token, or ErrNoToken if there is none.
	Load() (*Token, error)
	Save(*Token) error
}

// FileTokenStore keeps the token as JSON in a file readable only by the user.
type FileTokenStore struct {
	Path string
}

// Load reads the token file.
func (s FileTokenStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if t.AccessToken == "" && t.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &t, nil
}

// Save atomically replaces the token file.
func (s FileTokenStore) Save(t *Token) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return err
	}
	return renameio.WriteFile(s.Path, data, 0600)
}
