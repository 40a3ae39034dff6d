package workflows

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/asterixix/tecza/internal/audit"
	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/vault"
)

// KeysGenerateOptions configures the keys generate workflow.
type KeysGenerateOptions struct {
	// Output is where the vault is written. Empty means the configured
	// vault path.
	Output string

	// Passphrase protects the vault. It must not be empty.
	Passphrase string

	// Force overwrites an existing vault file.
	Force bool
}

// KeysGenerateResult contains the outcome of keys generate.
type KeysGenerateResult struct {
	Fingerprint string
	PublicKey   string
	VaultPath   string

	// ReplacedFingerprint is the previously published key, if any.
	ReplacedFingerprint string
}

// KeysGenerate creates a keypair for this session, publishes its public
// key on the profile store and writes a vault so the private key outlives
// the session.
//
// Returns ErrVaultExists if the vault file exists and Force is not set.
// Returns ErrEmptyPassphrase if no passphrase is given.
func KeysGenerate(ctx context.Context, env *Env, opts KeysGenerateOptions) (*KeysGenerateResult, error) {
	output := opts.Output
	if output == "" {
		output = env.Config.User.VaultPath
	}
	if err := checkVaultTarget(output, opts.Force); err != nil {
		return nil, err
	}
	if opts.Passphrase == "" {
		return nil, kerrors.ErrEmptyPassphrase
	}
	if !samePath(output, env.Config.User.VaultPath) {
		env.Log.Warnf("Later commands unlock the key from %s; import %s there before using it", env.Config.User.VaultPath, output)
	}

	kp, err := env.Keys.GetOrCreateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	fingerprint := secrets.Fingerprint(kp.Public)
	env.Trail.Log(audit.Entry{Identity: env.Identity, Fingerprint: fingerprint, Operation: audit.OpKeygen})

	// The vault is written before publishing so a published key always
	// has a recoverable private half.
	if err := writeVault(env, output, opts.Passphrase); err != nil {
		return nil, err
	}

	replaced, err := publishKey(ctx, env, kp.Public)
	if err != nil {
		return nil, err
	}
	env.Log.Infof("Published public key %s for %s", fingerprint, env.Identity)

	return &KeysGenerateResult{
		Fingerprint:         fingerprint,
		PublicKey:           secrets.ExportPublicKey(kp.Public),
		VaultPath:           output,
		ReplacedFingerprint: replaced,
	}, nil
}

// KeysShowResult describes the published key and the local vault.
type KeysShowResult struct {
	Identity string

	// Published is false when the identity has no public key on its profile.
	Published            bool
	PublishedFingerprint string

	VaultPath   string
	VaultExists bool

	// SessionFingerprint is the key last recorded for this session, if any.
	SessionFingerprint string
}

// KeysShow reports the public key published for identity. An empty
// identity means the local one. No passphrase is needed.
func KeysShow(ctx context.Context, env *Env, identity string) (*KeysShowResult, error) {
	if identity == "" {
		identity = env.Identity
	}

	result := &KeysShowResult{
		Identity:  identity,
		VaultPath: env.Config.User.VaultPath,
	}

	encoded, err := env.Backend.Profiles.PublicKey(ctx, identity)
	switch {
	case errors.Is(err, kerrors.ErrPublicKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("looking up public key: %w", err)
	default:
		pub, err := secrets.ImportPublicKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("published key for %s is unusable: %w", identity, err)
		}
		result.Published = true
		result.PublishedFingerprint = secrets.Fingerprint(pub)
	}

	if identity == env.Identity {
		if _, err := os.Stat(result.VaultPath); err == nil {
			result.VaultExists = true
		}
		result.SessionFingerprint, _ = env.Keys.Fingerprint()
	}
	return result, nil
}

// checkVaultTarget refuses to overwrite a vault unless force is set.
func checkVaultTarget(path string, force bool) error {
	_, err := os.Stat(path)
	switch {
	case err == nil && !force:
		return fmt.Errorf("%w: %s", kerrors.ErrVaultExists, path)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking vault file: %w", err)
	}
	return nil
}

// writeVault seals the session's private key under passphrase and writes
// it to path.
func writeVault(env *Env, path, passphrase string) error {
	pkcs8, err := env.Keys.ExportPrivateKey()
	if err != nil {
		return err
	}

	blob, err := vault.EncryptPrivateKey(pkcs8, passphrase)
	if err != nil {
		return err
	}
	data, err := vault.Marshal(blob)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}

	fingerprint, _ := env.Keys.Fingerprint()
	env.Trail.Log(audit.Entry{Identity: env.Identity, Fingerprint: fingerprint, Operation: audit.OpVaultExport, Path: path})
	env.Log.Infof("Wrote vault to %s", path)
	return nil
}
