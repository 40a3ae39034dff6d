package workflows

import (
	"context"
	"testing"

	"github.com/asterixix/tecza/internal/configs"
	"github.com/asterixix/tecza/internal/store/memory"
)

const testPassphrase = "correct horse battery staple"

func fixedPassphrase(passphrase string) PassphraseFunc {
	return func(string) (string, error) {
		return passphrase, nil
	}
}

// clearEnv keeps the caller's TECZA_* variables out of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(configs.EnvIdentity, "")
	t.Setenv(configs.EnvStorePath, "")
	t.Setenv(configs.EnvMinIOEndpoint, "")
}

// initHome writes a config for identity under a fresh home directory.
func initHome(t *testing.T, identity, driver string) string {
	t.Helper()
	home := t.TempDir()
	_, err := ConfigInit(context.Background(), ConfigInitOptions{
		Home:        home,
		Identity:    identity,
		StoreDriver: driver,
	})
	if err != nil {
		t.Fatalf("ConfigInit(%s) failed: %v", identity, err)
	}
	return home
}

// openShared opens an Env for home backed by the shared in-memory store.
func openShared(t *testing.T, home string, shared *memory.Store, passphrase string) *Env {
	t.Helper()
	backend := shared.Backend()
	env, err := OpenEnv(context.Background(), EnvOptions{
		Home:       home,
		Passphrase: fixedPassphrase(passphrase),
		Backend:    &backend,
		Feed:       shared,
	})
	if err != nil {
		t.Fatalf("OpenEnv failed: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

// newUser creates a home for identity and opens a session on shared.
func newUser(t *testing.T, shared *memory.Store, identity string) (string, *Env) {
	t.Helper()
	home := initHome(t, identity, configs.StoreDriverMemory)
	return home, openShared(t, home, shared, testPassphrase)
}

// withKeys runs keys generate for env with the test passphrase.
func withKeys(t *testing.T, env *Env) *KeysGenerateResult {
	t.Helper()
	result, err := KeysGenerate(context.Background(), env, KeysGenerateOptions{Passphrase: testPassphrase})
	if err != nil {
		t.Fatalf("KeysGenerate(%s) failed: %v", env.Identity, err)
	}
	return result
}
