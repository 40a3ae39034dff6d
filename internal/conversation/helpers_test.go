package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/asterixix/tecza/internal/keyring"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/store"
	"github.com/asterixix/tecza/internal/store/memory"
)

var (
	fixtureOnce sync.Once
	fixtureKeys []*secrets.KeyPair
	fixtureErr  error
)

// keyPairs returns three keypairs generated once for the package.
func keyPairs(t *testing.T) (*secrets.KeyPair, *secrets.KeyPair, *secrets.KeyPair) {
	t.Helper()
	fixtureOnce.Do(func() {
		for i := 0; i < 3; i++ {
			kp, err := secrets.GenerateKeyPair()
			if err != nil {
				fixtureErr = err
				return
			}
			fixtureKeys = append(fixtureKeys, kp)
		}
	})
	if fixtureErr != nil {
		t.Fatalf("failed to generate fixture key pairs: %v", fixtureErr)
	}
	return fixtureKeys[0], fixtureKeys[1], fixtureKeys[2]
}

// party is one identity with its own key session over a shared store.
type party struct {
	identity string
	keys     *keyring.Manager
	svc      *Service
}

func newParty(t *testing.T, backend store.Backend, identity string, opts ...Option) *party {
	t.Helper()
	keys := keyring.NewManager(keyring.NewMemorySessionStore())
	return &party{
		identity: identity,
		keys:     keys,
		svc:      NewService(keys, identity, backend, opts...),
	}
}

// install loads kp into the party's keyring.
func (p *party) install(t *testing.T, kp *secrets.KeyPair) {
	t.Helper()
	exported, err := secrets.ExportPrivateKey(kp.Private)
	if err != nil {
		t.Fatalf("failed to export key for %s: %v", p.identity, err)
	}
	if err := p.keys.SetPrivateKeyFromExport(exported); err != nil {
		t.Fatalf("failed to install key for %s: %v", p.identity, err)
	}
}

// publish makes kp the party's published public key.
func (p *party) publish(t *testing.T, backend store.Backend, kp *secrets.KeyPair) {
	t.Helper()
	err := backend.Profiles.PublishPublicKey(context.Background(), p.identity, secrets.ExportPublicKey(kp.Public))
	if err != nil {
		t.Fatalf("failed to publish key for %s: %v", p.identity, err)
	}
}

// restart returns the same identity with a fresh, empty keyring.
func (p *party) restart(t *testing.T, backend store.Backend, opts ...Option) *party {
	t.Helper()
	return newParty(t, backend, p.identity, opts...)
}

func newBackend() (*memory.Store, store.Backend) {
	s := memory.New()
	return s, s.Backend()
}

func mustOpen(t *testing.T, p *party, sess *Session) *Session {
	t.Helper()
	opened, err := p.svc.Open(context.Background(), sess.ID())
	if err != nil {
		t.Fatalf("%s: Open failed: %v", p.identity, err)
	}
	return opened
}

func mustHistory(t *testing.T, sess *Session) []DecryptedMessage {
	t.Helper()
	history, err := sess.History(context.Background())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	return history
}
