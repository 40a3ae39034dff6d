package keyring

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// SessionStore holds the only thing a session may persist about its key:
// the public key fingerprint. It must never hold secret material.
type SessionStore interface {
	// Fingerprint returns the recorded fingerprint, or ok=false if none.
	Fingerprint() (fingerprint string, ok bool, err error)
	SetFingerprint(fingerprint string) error
	Clear() error
}

// MemorySessionStore keeps the fingerprint in process memory.
type MemorySessionStore struct {
	mu          sync.Mutex
	fingerprint string
}

// NewMemorySessionStore returns an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) Fingerprint() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint, s.fingerprint != "", nil
}

func (s *MemorySessionStore) SetFingerprint(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fingerprint
	return nil
}

func (s *MemorySessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = ""
	return nil
}

// sessionFile is the on-disk form of FileSessionStore.
type sessionFile struct {
	Fingerprint string    `toml:"fingerprint"`
	RecordedAt  time.Time `toml:"recorded_at"`
}

// FileSessionStore keeps the fingerprint in a TOML file, normally under the
// user's runtime directory so it disappears with the login session.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore returns a store backed by the file at path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (s *FileSessionStore) Fingerprint() (string, bool, error) {
	var f sessionFile
	if _, err := toml.DecodeFile(s.path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read session file %s: %w", s.path, err)
	}
	return f.Fingerprint, f.Fingerprint != "", nil
}

func (s *FileSessionStore) SetFingerprint(fingerprint string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open session file %s: %w", s.path, err)
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(sessionFile{
		Fingerprint: fingerprint,
		RecordedAt:  time.Now().UTC(),
	})
}

func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file %s: %w", s.path, err)
	}
	return nil
}
