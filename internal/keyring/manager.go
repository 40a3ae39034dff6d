package keyring

import (
	"fmt"
	"sync"

	kerrors "github.com/asterixix/tecza/internal/errors"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/secrets"
)

// Manager is the single source of truth, for one session, of which private
// key the local identity holds. A key is installed at most once per
// Manager; a second installation fails with ErrAlreadyInitialized.
//
// The private key lives only in memory. The SessionStore records the public
// key fingerprint so a later Manager on the same session can tell that a
// key existed and was lost.
type Manager struct {
	mu       sync.RWMutex
	keys     *secrets.KeyPair
	session  SessionStore
	log      logger.Logger
	generate func() (*secrets.KeyPair, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for key lifecycle messages.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithKeyGenerator replaces secrets.GenerateKeyPair.
func WithKeyGenerator(fn func() (*secrets.KeyPair, error)) Option {
	return func(m *Manager) {
		m.generate = fn
	}
}

// NewManager creates an empty Manager bound to session. A nil session uses
// a fresh MemorySessionStore.
func NewManager(session SessionStore, opts ...Option) *Manager {
	if session == nil {
		session = NewMemorySessionStore()
	}
	m := &Manager{
		session:  session,
		generate: secrets.GenerateKeyPair,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreateKeyPair returns the loaded keypair, generating and installing
// one if the session has none yet.
func (m *Manager) GetOrCreateKeyPair() (*secrets.KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys != nil {
		return m.keys, nil
	}

	if previous, ok := m.recordedFingerprint(); ok {
		m.log.Warnf("Session previously held key %s which is no longer loaded; conversations wrapped for it will need a vault import or a new grant", previous)
	}

	kp, err := m.generate()
	if err != nil {
		return nil, err
	}

	m.installLocked(kp)
	m.log.Infof("Generated new key pair %s", secrets.Fingerprint(kp.Public))
	return kp, nil
}

// SetPrivateKeyFromExport installs a base64 PKCS#8 private key, typically
// the output of a vault decryption. The installed handle only unwraps.
func (m *Manager) SetPrivateKeyFromExport(pkcs8 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys != nil {
		return kerrors.ErrAlreadyInitialized
	}

	priv, err := secrets.ImportPrivateKey(pkcs8)
	if err != nil {
		return fmt.Errorf("failed to import private key: %w", err)
	}

	m.installLocked(&secrets.KeyPair{Public: priv.Public(), Private: priv})
	m.log.Infof("Imported key pair %s", secrets.Fingerprint(priv.Public()))
	return nil
}

// PrivateKey returns the loaded private key. ok is false when no key has
// been generated or imported; that is an ordinary state, not an error.
func (m *Manager) PrivateKey() (priv *secrets.PrivateKey, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return nil, false
	}
	return m.keys.Private, true
}

// PublicKey returns the public half of the loaded key.
func (m *Manager) PublicKey() (pub *secrets.PublicKey, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return nil, false
	}
	return m.keys.Public, true
}

// ExportPrivateKey returns the loaded key as base64 PKCS#8 for the vault.
func (m *Manager) ExportPrivateKey() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return "", kerrors.ErrNoKeyLoaded
	}
	return secrets.ExportPrivateKey(m.keys.Private)
}

// Fingerprint returns the fingerprint of the loaded key, or the one
// recorded by the session if none is loaded.
func (m *Manager) Fingerprint() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys != nil {
		return secrets.Fingerprint(m.keys.Public), true
	}
	return m.recordedFingerprint()
}

// Stale reports whether the session recorded a key that is not loaded, for
// example after a restart. Callers should offer a vault import.
func (m *Manager) Stale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys != nil {
		return false
	}
	_, ok := m.recordedFingerprint()
	return ok
}

func (m *Manager) installLocked(kp *secrets.KeyPair) {
	m.keys = kp
	if err := m.session.SetFingerprint(secrets.Fingerprint(kp.Public)); err != nil {
		m.log.Warnf("Failed to record key fingerprint in session: %v", err)
	}
}

func (m *Manager) recordedFingerprint() (string, bool) {
	fp, ok, err := m.session.Fingerprint()
	if err != nil {
		m.log.Warnf("Failed to read session fingerprint: %v", err)
		return "", false
	}
	return fp, ok
}
