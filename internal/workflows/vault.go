package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asterixix/tecza/internal/audit"
	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/vault"
)

// VaultExportOptions configures the vault export workflow.
type VaultExportOptions struct {
	Output string

	// Passphrase protects the exported vault. It may differ from the
	// passphrase of the configured vault.
	Passphrase string

	Force bool
}

// VaultExportResult contains the outcome of vault export.
type VaultExportResult struct {
	Fingerprint string
	Path        string
}

// VaultExport unlocks the configured vault and re-seals the private key
// into a new vault at Output, with fresh salt and IV.
func VaultExport(ctx context.Context, env *Env, opts VaultExportOptions) (*VaultExportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Output == "" {
		return nil, fmt.Errorf("%w: an output path is required", kerrors.ErrInvalidConfig)
	}
	if err := checkVaultTarget(opts.Output, opts.Force); err != nil {
		return nil, err
	}
	if opts.Passphrase == "" {
		return nil, kerrors.ErrEmptyPassphrase
	}

	if err := env.Unlock(); err != nil {
		return nil, err
	}
	if err := writeVault(env, opts.Output, opts.Passphrase); err != nil {
		return nil, err
	}

	fingerprint, _ := env.Keys.Fingerprint()
	return &VaultExportResult{Fingerprint: fingerprint, Path: opts.Output}, nil
}

// VaultImportOptions configures the vault import workflow.
type VaultImportOptions struct {
	Path       string
	Passphrase string

	// Publish makes the imported key the identity's published public key.
	Publish bool

	// Force overwrites a different vault at the configured vault path.
	Force bool
}

// VaultImportResult contains the outcome of vault import.
type VaultImportResult struct {
	Fingerprint string

	// VaultPath is where the vault is kept for later sessions.
	VaultPath string

	Published bool

	// ReplacedFingerprint is the previously published key, if a different
	// one was replaced.
	ReplacedFingerprint string
}

// VaultImport decrypts a vault, installs its key into this session and
// stores the vault at the configured path for later sessions.
//
// Returns ErrWrongPassphraseOrCorruptVault for a wrong passphrase or a
// damaged file, and ErrAlreadyInitialized if a key is already loaded.
func VaultImport(ctx context.Context, env *Env, opts VaultImportOptions) (*VaultImportResult, error) {
	data, err := os.ReadFile(opts.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", kerrors.ErrVaultNotFound, opts.Path)
		}
		return nil, fmt.Errorf("reading vault: %w", err)
	}
	blob, err := vault.Parse(data)
	if err != nil {
		return nil, err
	}

	target := env.Config.User.VaultPath
	copyVault := !samePath(opts.Path, target)
	if copyVault {
		if err := checkVaultTarget(target, opts.Force); err != nil {
			return nil, err
		}
	}

	pkcs8, err := vault.DecryptPrivateKey(blob, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	if err := env.Keys.SetPrivateKeyFromExport(pkcs8); err != nil {
		return nil, err
	}

	pub, _ := env.Keys.PublicKey()
	fingerprint := secrets.Fingerprint(pub)
	env.Trail.Log(audit.Entry{Identity: env.Identity, Fingerprint: fingerprint, Operation: audit.OpKeyImport})
	env.Trail.Log(audit.Entry{Identity: env.Identity, Fingerprint: fingerprint, Operation: audit.OpVaultImport, Path: opts.Path})

	result := &VaultImportResult{Fingerprint: fingerprint, VaultPath: target}

	if copyVault {
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return nil, fmt.Errorf("creating vault directory: %w", err)
		}
		if err := os.WriteFile(target, data, 0600); err != nil {
			return nil, fmt.Errorf("writing vault: %w", err)
		}
		env.Log.Infof("Stored vault at %s", target)
	}

	if opts.Publish {
		replaced, err := publishKey(ctx, env, pub)
		if err != nil {
			return nil, err
		}
		result.Published = true
		result.ReplacedFingerprint = replaced
	}
	return result, nil
}

// publishKey publishes pub for the local identity unless it is already
// published. It returns the fingerprint of a different key it replaced.
func publishKey(ctx context.Context, env *Env, pub *secrets.PublicKey) (string, error) {
	fingerprint := secrets.Fingerprint(pub)

	var replaced string
	current, err := env.Backend.Profiles.PublicKey(ctx, env.Identity)
	switch {
	case errors.Is(err, kerrors.ErrPublicKeyNotFound):
	case err != nil:
		return "", fmt.Errorf("looking up public key: %w", err)
	default:
		if existing, err := secrets.ImportPublicKey(current); err == nil {
			if secrets.Fingerprint(existing) == fingerprint {
				env.Log.Debugf("Public key %s is already published", fingerprint)
				return "", nil
			}
			replaced = secrets.Fingerprint(existing)
		}
	}

	if err := env.Backend.Profiles.PublishPublicKey(ctx, env.Identity, secrets.ExportPublicKey(pub)); err != nil {
		return "", fmt.Errorf("publishing public key: %w", err)
	}
	if replaced != "" {
		env.Log.Warnf("Replaced published key %s with %s; conversations wrapped for the old key need a new grant", replaced, fingerprint)
	}
	return replaced, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
