package workflows

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/asterixix/tecza/internal/configs"
	kerrors "github.com/asterixix/tecza/internal/errors"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/utils"
)

// ConfigInitOptions configures the config init workflow.
type ConfigInitOptions struct {
	Home string

	// Identity is the local identity. Empty means user@host.
	Identity string

	// StoreDriver and MediaDriver override the defaults when set.
	StoreDriver string
	MediaDriver string

	// Force overwrites an existing config file.
	Force bool

	Logger logger.Logger
}

// ConfigInitResult contains the outcome of config init.
type ConfigInitResult struct {
	Path   string
	Config *configs.Config
}

// ConfigInit writes a fresh config file.
//
// Returns ErrConfigExists if a config file exists and Force is not set.
// Returns ErrInvalidConfig if the identity or drivers are invalid.
func ConfigInit(ctx context.Context, opts ConfigInitOptions) (*ConfigInitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings, err := resolveSettings(opts.Home)
	if err != nil {
		return nil, fmt.Errorf("resolving settings: %w", err)
	}

	path := settings.ConfigPath()
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrConfigExists, path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	identity := strings.TrimSpace(opts.Identity)
	if identity == "" {
		identity, err = utils.DefaultIdentity()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot derive a default identity, pass one explicitly: %w", kerrors.ErrInvalidConfig, err)
		}
		opts.Logger.Infof("No identity given, using %s", identity)
	}

	config := configs.DefaultConfig(settings)
	config.User.Identity = identity
	if opts.StoreDriver != "" {
		config.Store.Driver = opts.StoreDriver
	}
	if opts.MediaDriver != "" {
		config.Media.Driver = opts.MediaDriver
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := configs.SaveConfig(settings, config); err != nil {
		return nil, err
	}

	opts.Logger.Infof("Wrote config to %s", path)
	return &ConfigInitResult{Path: path, Config: config}, nil
}

// ConfigShowResult contains the effective configuration.
type ConfigShowResult struct {
	Path     string
	Exists   bool
	Settings *configs.Settings
	Config   *configs.Config
}

// ConfigShow loads the effective configuration, including environment
// overrides, without requiring an identity.
func ConfigShow(ctx context.Context, home string) (*ConfigShowResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings, err := resolveSettings(home)
	if err != nil {
		return nil, fmt.Errorf("resolving settings: %w", err)
	}

	config, err := configs.LoadConfig(settings)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(settings.ConfigPath())
	return &ConfigShowResult{
		Path:     settings.ConfigPath(),
		Exists:   statErr == nil,
		Settings: settings,
		Config:   config,
	}, nil
}
