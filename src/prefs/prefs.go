// Package prefs keeps the client's session between launches in a small YAML
// file: whether the user finished linking and the access token to refresh with.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const (
	keySignedIn    = "signed_in"
	keyAccessToken = "access_token"
)

type Store struct {
	mu   sync.Mutex
	path string
	v    *viper.Viper
}

// Open loads the preferences file at path. A missing file is an empty,
// signed-out session.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keySignedIn, false)
	v.SetDefault(keyAccessToken, "")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read preferences: %w", err)
		}
	}
	return &Store{path: path, v: v}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(keySignedIn)
}

// AccessToken returns the stored token, or "" when signed out.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.GetBool(keySignedIn) {
		return ""
	}
	return s.v.GetString(keyAccessToken)
}

func (s *Store) SaveSession(accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(keySignedIn, true)
	s.v.Set(keyAccessToken, accessToken)
	return s.write()
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(keySignedIn, false)
	s.v.Set(keyAccessToken, "")
	return s.write()
}

func (s *Store) write() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Chmod(s.path, 0o600)
}
