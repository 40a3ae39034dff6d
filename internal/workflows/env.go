package workflows

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/asterixix/tecza/internal/audit"
	"github.com/asterixix/tecza/internal/configs"
	"github.com/asterixix/tecza/internal/conversation"
	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/keyring"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/realtime"
	"github.com/asterixix/tecza/internal/store"
	"github.com/asterixix/tecza/internal/store/memory"
	"github.com/asterixix/tecza/internal/store/minioblob"
	"github.com/asterixix/tecza/internal/store/sqlite"
	"github.com/asterixix/tecza/internal/vault"
)

// PassphraseFunc supplies a passphrase for prompt.
type PassphraseFunc func(prompt string) (string, error)

// EnvOptions configures OpenEnv.
type EnvOptions struct {
	// Home places the config, data and runtime directories under one root.
	Home string

	Logger logger.Logger

	// Passphrase is asked for vault passphrases. Unlock fails without it.
	Passphrase PassphraseFunc

	// Backend replaces the configured stores when set. Feed must then be
	// set too if the command watches conversations.
	Backend *store.Backend
	Feed    store.ChangeFeed

	// Keyring options are passed to the session's key manager.
	Keyring []keyring.Option
}

// Env is everything a command needs for one session.
type Env struct {
	Settings *configs.Settings
	Config   *configs.Config
	Identity string
	Log      logger.Logger

	Backend store.Backend
	Feed    store.ChangeFeed
	Keys    *keyring.Manager
	Trail   *audit.Trail

	passphrase PassphraseFunc
	closers    []func() error
}

func resolveSettings(home string) (*configs.Settings, error) {
	if home != "" {
		return configs.SettingsForRoot(home), nil
	}
	return configs.ResolveSettings()
}

// OpenEnv loads the configuration and opens the configured stores. The
// caller must Close the returned Env.
func OpenEnv(ctx context.Context, opts EnvOptions) (*Env, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings, err := resolveSettings(opts.Home)
	if err != nil {
		return nil, fmt.Errorf("resolving settings: %w", err)
	}

	config, err := configs.LoadConfig(settings)
	if err != nil {
		return nil, err
	}

	identity, err := config.RequireIdentity()
	if err != nil {
		return nil, err
	}

	env := &Env{
		Settings:   settings,
		Config:     config,
		Identity:   identity,
		Log:        opts.Logger,
		Trail:      audit.NewTrail(settings.AuditPath()),
		passphrase: opts.Passphrase,
	}

	keyOpts := append([]keyring.Option{keyring.WithLogger(opts.Logger)}, opts.Keyring...)
	env.Keys = keyring.NewManager(keyring.NewFileSessionStore(settings.SessionPath(identity)), keyOpts...)

	if opts.Backend != nil {
		env.Backend = *opts.Backend
		env.Feed = opts.Feed
		opts.Logger.Debugf("Using injected store backend")
		return env, nil
	}

	if err := env.openStores(); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// openStores wires the message store, the change feed and the blob store
// from the config.
func (e *Env) openStores() error {
	cfg := e.Config

	switch cfg.Store.Driver {
	case configs.StoreDriverSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, db.Close)
		e.Backend = db.Backend()

		poller := realtime.NewPoller(realtime.Config{
			Messages:        db,
			InitialInterval: cfg.Realtime.PollInterval.Duration,
			MaxBackoff:      cfg.Realtime.MaxBackoff.Duration,
			Logger:          e.Log,
		})
		e.closers = append(e.closers, func() error {
			poller.Stop()
			return nil
		})
		e.Feed = poller
		e.Log.Debugf("Opened sqlite store at %s", cfg.Store.SQLitePath)

	case configs.StoreDriverMemory:
		mem := memory.New()
		e.Backend = mem.Backend()
		e.Feed = mem
		e.Log.Warnf("Using the in-memory store: nothing is kept after this command exits")

	default:
		return fmt.Errorf("%w: %q", kerrors.ErrUnknownStoreDriver, cfg.Store.Driver)
	}

	if cfg.Media.Driver == configs.MediaDriverMinIO {
		blobs, err := minioblob.New(minioblob.Config{
			Endpoint:  cfg.Media.MinIO.Endpoint,
			AccessKey: cfg.Media.MinIO.AccessKey,
			SecretKey: cfg.Media.MinIO.SecretKey,
			Bucket:    cfg.Media.MinIO.Bucket,
			UseSSL:    cfg.Media.MinIO.UseSSL,
		}, e.Log)
		if err != nil {
			return err
		}
		e.Backend.Blobs = blobs
	}
	return nil
}

// Close releases the stores in reverse order of opening.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Service returns a conversation service bound to this session.
func (e *Env) Service() *conversation.Service {
	return conversation.NewService(e.Keys, e.Identity, e.Backend,
		conversation.WithLogger(e.Log),
		conversation.WithAuditTrail(e.Trail),
	)
}

// Unlock loads the private key from the configured vault unless one is
// already loaded in this session.
func (e *Env) Unlock() error {
	if _, ok := e.Keys.PrivateKey(); ok {
		return nil
	}

	path := e.Config.User.VaultPath
	blob, err := readVault(path)
	if err != nil {
		return err
	}

	passphrase, err := e.askPassphrase("Vault passphrase: ")
	if err != nil {
		return err
	}

	pkcs8, err := vault.DecryptPrivateKey(blob, passphrase)
	if err != nil {
		return err
	}
	if err := e.Keys.SetPrivateKeyFromExport(pkcs8); err != nil {
		return err
	}

	fingerprint, _ := e.Keys.Fingerprint()
	e.Log.Debugf("Unlocked key %s from %s", fingerprint, path)
	return nil
}

func (e *Env) askPassphrase(prompt string) (string, error) {
	if e.passphrase == nil {
		return "", fmt.Errorf("%w: no passphrase source available", kerrors.ErrEmptyPassphrase)
	}
	passphrase, err := e.passphrase(prompt)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return passphrase, nil
}

func readVault(path string) (*vault.Blob, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrVaultNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading vault: %w", err)
	}
	return vault.Parse(data)
}
