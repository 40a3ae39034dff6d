package keyring

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	kerrors "github.com/asterixix/tecza/internal/errors"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/secrets"
)

var (
	fixtureOnce sync.Once
	fixtureA    *secrets.KeyPair
	fixtureB    *secrets.KeyPair
	fixtureErr  error
)

// fixtures returns two keypairs generated once for the package.
func fixtures(t *testing.T) (*secrets.KeyPair, *secrets.KeyPair) {
	t.Helper()
	fixtureOnce.Do(func() {
		fixtureA, fixtureErr = secrets.GenerateKeyPair()
		if fixtureErr != nil {
			return
		}
		fixtureB, fixtureErr = secrets.GenerateKeyPair()
	})
	if fixtureErr != nil {
		t.Fatalf("failed to generate fixture key pairs: %v", fixtureErr)
	}
	return fixtureA, fixtureB
}

// countingGenerator hands out kp and counts calls.
func countingGenerator(kp *secrets.KeyPair, calls *int) Option {
	var mu sync.Mutex
	return WithKeyGenerator(func() (*secrets.KeyPair, error) {
		mu.Lock()
		defer mu.Unlock()
		*calls++
		return kp, nil
	})
}

func quietLogger() (logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.Logger{Out: &buf, Err: &buf}, &buf
}

func TestEmptyManagerHasNoKey(t *testing.T) {
	m := NewManager(nil)

	if _, ok := m.PrivateKey(); ok {
		t.Error("expected no private key on a new manager")
	}
	if _, ok := m.PublicKey(); ok {
		t.Error("expected no public key on a new manager")
	}
	if _, err := m.ExportPrivateKey(); !errors.Is(err, kerrors.ErrNoKeyLoaded) {
		t.Errorf("expected ErrNoKeyLoaded, got: %v", err)
	}
	if m.Stale() {
		t.Error("expected a new manager with an empty session not to be stale")
	}
}

func TestGetOrCreateKeyPairIsIdempotent(t *testing.T) {
	kpA, _ := fixtures(t)
	calls := 0
	m := NewManager(nil, countingGenerator(kpA, &calls))

	first, err := m.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("GetOrCreateKeyPair failed: %v", err)
	}
	second, err := m.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("second GetOrCreateKeyPair failed: %v", err)
	}

	if first != second {
		t.Error("expected the same key pair on repeated calls")
	}
	if calls != 1 {
		t.Errorf("expected the generator to run once, ran %d times", calls)
	}
	priv, ok := m.PrivateKey()
	if !ok || priv != kpA.Private {
		t.Error("expected PrivateKey to return the generated key")
	}
}

func TestGetOrCreateKeyPairConcurrent(t *testing.T) {
	kpA, _ := fixtures(t)
	calls := 0
	m := NewManager(nil, countingGenerator(kpA, &calls))

	var wg sync.WaitGroup
	results := make([]*secrets.KeyPair, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kp, err := m.GetOrCreateKeyPair()
			if err != nil {
				t.Errorf("GetOrCreateKeyPair failed: %v", err)
				return
			}
			results[i] = kp
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected exactly one generation, got %d", calls)
	}
	for i, kp := range results {
		if kp != results[0] {
			t.Errorf("result %d differs from result 0", i)
		}
	}
}

func TestGetOrCreateKeyPairPropagatesGeneratorError(t *testing.T) {
	boom := errors.New("entropy exhausted")
	m := NewManager(nil, WithKeyGenerator(func() (*secrets.KeyPair, error) {
		return nil, boom
	}))

	if _, err := m.GetOrCreateKeyPair(); !errors.Is(err, boom) {
		t.Errorf("expected generator error, got: %v", err)
	}
	if _, ok := m.PrivateKey(); ok {
		t.Error("expected no key after failed generation")
	}
}

func TestSetPrivateKeyFromExport(t *testing.T) {
	kpA, _ := fixtures(t)
	exported, err := secrets.ExportPrivateKey(kpA.Private)
	if err != nil {
		t.Fatalf("failed to export fixture key: %v", err)
	}

	m := NewManager(nil)
	if err := m.SetPrivateKeyFromExport(exported); err != nil {
		t.Fatalf("SetPrivateKeyFromExport failed: %v", err)
	}

	pub, ok := m.PublicKey()
	if !ok {
		t.Fatal("expected a public key after import")
	}
	if secrets.Fingerprint(pub) != secrets.Fingerprint(kpA.Public) {
		t.Error("imported key has a different fingerprint")
	}

	// A key wrapped for the original keypair unwraps with the imported one.
	sym, err := secrets.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("failed to generate symmetric key: %v", err)
	}
	wrapped, err := secrets.WrapKey(sym, kpA.Public)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	priv, _ := m.PrivateKey()
	got, err := secrets.UnwrapKey(wrapped, priv)
	if err != nil {
		t.Fatalf("UnwrapKey with imported key failed: %v", err)
	}
	if !got.Equal(sym) {
		t.Error("unwrapped key differs from the original")
	}

	again, err := m.ExportPrivateKey()
	if err != nil {
		t.Fatalf("ExportPrivateKey failed: %v", err)
	}
	if again != exported {
		t.Error("expected re-export to match the imported PKCS#8")
	}
}

func TestSecondInstallFails(t *testing.T) {
	kpA, kpB := fixtures(t)
	exportedB, err := secrets.ExportPrivateKey(kpB.Private)
	if err != nil {
		t.Fatalf("failed to export fixture key: %v", err)
	}

	t.Run("import after generate", func(t *testing.T) {
		calls := 0
		m := NewManager(nil, countingGenerator(kpA, &calls))
		if _, err := m.GetOrCreateKeyPair(); err != nil {
			t.Fatalf("GetOrCreateKeyPair failed: %v", err)
		}
		if err := m.SetPrivateKeyFromExport(exportedB); !errors.Is(err, kerrors.ErrAlreadyInitialized) {
			t.Errorf("expected ErrAlreadyInitialized, got: %v", err)
		}
		pub, _ := m.PublicKey()
		if secrets.Fingerprint(pub) != secrets.Fingerprint(kpA.Public) {
			t.Error("first key must remain installed")
		}
	})

	t.Run("import twice", func(t *testing.T) {
		m := NewManager(nil)
		if err := m.SetPrivateKeyFromExport(exportedB); err != nil {
			t.Fatalf("first import failed: %v", err)
		}
		if err := m.SetPrivateKeyFromExport(exportedB); !errors.Is(err, kerrors.ErrAlreadyInitialized) {
			t.Errorf("expected ErrAlreadyInitialized, got: %v", err)
		}
	})
}

func TestSetPrivateKeyFromExportRejectsGarbage(t *testing.T) {
	m := NewManager(nil)
	err := m.SetPrivateKeyFromExport("not a key")
	if !errors.Is(err, kerrors.ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat, got: %v", err)
	}
	if _, ok := m.PrivateKey(); ok {
		t.Error("expected no key after failed import")
	}
}

func TestManagersAreIsolated(t *testing.T) {
	kpA, kpB := fixtures(t)
	callsA, callsB := 0, 0
	m1 := NewManager(nil, countingGenerator(kpA, &callsA))
	m2 := NewManager(nil, countingGenerator(kpB, &callsB))

	if _, err := m1.GetOrCreateKeyPair(); err != nil {
		t.Fatalf("m1 GetOrCreateKeyPair failed: %v", err)
	}
	if _, ok := m2.PrivateKey(); ok {
		t.Error("installing a key in one manager must not affect another")
	}
	if _, err := m2.GetOrCreateKeyPair(); err != nil {
		t.Fatalf("m2 GetOrCreateKeyPair failed: %v", err)
	}

	fp1, _ := m1.Fingerprint()
	fp2, _ := m2.Fingerprint()
	if fp1 == fp2 {
		t.Error("expected distinct keys in distinct managers")
	}
}

func TestStaleSession(t *testing.T) {
	kpA, _ := fixtures(t)
	session := NewFileSessionStore(filepath.Join(t.TempDir(), "session.toml"))

	calls := 0
	first := NewManager(session, countingGenerator(kpA, &calls))
	if _, err := first.GetOrCreateKeyPair(); err != nil {
		t.Fatalf("GetOrCreateKeyPair failed: %v", err)
	}
	if first.Stale() {
		t.Error("a manager holding its key is not stale")
	}

	// A restart: same session, new in-memory manager.
	log, buf := quietLogger()
	second := NewManager(session, WithLogger(log), countingGenerator(kpA, &calls))
	if !second.Stale() {
		t.Fatal("expected the restarted manager to be stale")
	}
	fp, ok := second.Fingerprint()
	if !ok || fp != secrets.Fingerprint(kpA.Public) {
		t.Errorf("expected recorded fingerprint %s, got %q", secrets.Fingerprint(kpA.Public), fp)
	}

	if _, err := second.GetOrCreateKeyPair(); err != nil {
		t.Fatalf("GetOrCreateKeyPair failed: %v", err)
	}
	if !strings.Contains(buf.String(), "no longer loaded") {
		t.Errorf("expected a warning about the lost key, got: %q", buf.String())
	}
	if second.Stale() {
		t.Error("expected the manager not to be stale after installing a key")
	}
}
