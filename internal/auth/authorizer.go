// Package auth gates scans behind a list of authorization tokens.
//
// Tokens live in a JSON file holding an array of {"token": "...", "label": "..."}
// objects and are compared by exact string match.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// ErrUnauthorized is returned when a token is absent from the store
var ErrUnauthorized = errors.New("invalid or missing authorization token")

// TokenEntry is one authorized token
type TokenEntry struct {
	Token string `json:"token"`
	Label string `json:"label,omitempty"`
}

// FileAuthorizer validates tokens against a JSON token file
type FileAuthorizer struct {
	fs   afero.Fs
	path string
}

// NewFileAuthorizer returns an authorizer reading path from fs
func NewFileAuthorizer(fs afero.Fs, path string) *FileAuthorizer {
	return &FileAuthorizer{fs: fs, path: path}
}

// Validate reports whether token is authorized. It returns ErrUnauthorized
// for unknown or empty tokens, and a wrapped read error when the token file
// exists but cannot be parsed. A missing file is an empty store.
func (a *FileAuthorizer) Validate(token string) (bool, error) {
	entries, err := a.Load()
	if err != nil {
		return false, err
	}

	if token != "" {
		for _, e := range entries {
			if e.Token == token {
				return true, nil
			}
		}
	}

	return false, ErrUnauthorized
}

// Load reads every entry from the token file
func (a *FileAuthorizer) Load() ([]TokenEntry, error) {
	data, err := afero.ReadFile(a.fs, a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file %s: %w", a.path, err)
	}

	var entries []TokenEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", a.path, err)
	}
	return entries, nil
}

// WriteEmpty creates an empty token file unless one already exists
func WriteEmpty(fs afero.Fs, path string) (bool, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := afero.WriteFile(fs, path, []byte("[]\n"), 0600); err != nil {
		return false, fmt.Errorf("writing token file %s: %w", path, err)
	}
	return true, nil
}
