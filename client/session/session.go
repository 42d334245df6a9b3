// Package session owns the single durable client-side credential: the
// bearer token. Nothing else survives a process restart; identity data is
// re-derived from the token on every fresh start.
package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists at most one bearer token.
type Store interface {
	// Token returns the persisted token, if any.
	Token() (string, bool)
	// Persist replaces the stored token.
	Persist(token string) error
	// Clear removes the stored token. Clearing an empty store is a no-op.
	Clear() error
}

var errEmptyToken = errors.New("session: token is empty")

// MemStore keeps the token in memory. Used by tests and embedded callers
// that manage their own persistence.
type MemStore struct {
	mu    sync.Mutex
	token string
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *MemStore) Persist(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// FileStore persists the token as a single 0600 file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore stores the token at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFileStore places the token under the user config directory.
func DefaultFileStore() (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return NewFileStore(filepath.Join(dir, "ainstein", "token")), nil
}

func (s *FileStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

func (s *FileStore) Persist(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token+"\n"), 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
