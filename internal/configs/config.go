package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/utils"
)

// Store and media drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"

	// MediaDriverStore keeps media blobs in the configured store.
	MediaDriverStore = "store"
	MediaDriverMinIO = "minio"
)

// Environment variables that override the config file.
const (
	EnvIdentity      = "TECZA_IDENTITY"
	EnvStorePath     = "TECZA_STORE_PATH"
	EnvMinIOEndpoint = "TECZA_MINIO_ENDPOINT"
)

type Config struct {
	User     User     `toml:"user"`
	Store    Store    `toml:"store"`
	Media    Media    `toml:"media"`
	Realtime Realtime `toml:"realtime"`
}

type User struct {
	Identity  string `toml:"identity"`
	VaultPath string `toml:"vault_path"`
}

type Store struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

type Media struct {
	Driver string `toml:"driver"`
	MinIO  MinIO  `toml:"minio"`
}

type MinIO struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

type Realtime struct {
	PollInterval Duration `toml:"poll_interval"`
	MaxBackoff   Duration `toml:"max_backoff"`
}

// Duration is a time.Duration written as a string such as "1s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig(settings *Settings) *Config {
	return &Config{
		User: User{
			VaultPath: settings.VaultPath(),
		},
		Store: Store{
			Driver:     StoreDriverSQLite,
			SQLitePath: settings.DatabasePath(),
		},
		Media: Media{
			Driver: MediaDriverStore,
			MinIO: MinIO{
				Endpoint: "localhost:9000",
				Bucket:   "tecza-media",
			},
		},
		Realtime: Realtime{
			PollInterval: Duration{time.Second},
			MaxBackoff:   Duration{15 * time.Second},
		},
	}
}

// LoadConfig reads the config file over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func LoadConfig(settings *Settings) (*Config, error) {
	config := DefaultConfig(settings)

	path := settings.ConfigPath()
	if err := LoadTOML(path, config); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the config file.
func SaveConfig(settings *Settings, config *Config) error {
	if err := SaveTOML(settings.ConfigPath(), config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the TECZA_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvIdentity); v != "" {
		c.User.Identity = v
	}
	if v := getenv(EnvStorePath); v != "" {
		c.Store.SQLitePath = v
	}
	if v := getenv(EnvMinIOEndpoint); v != "" {
		c.Media.MinIO.Endpoint = v
	}
}

// Validate checks drivers, paths and intervals. The identity is checked
// separately by RequireIdentity since not every command needs it.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("%w: store.driver %q", kerrors.ErrUnknownStoreDriver, c.Store.Driver)
	}

	switch c.Media.Driver {
	case MediaDriverStore:
	case MediaDriverMinIO:
		if c.Media.MinIO.Endpoint == "" {
			problems = append(problems, "media.minio.endpoint is required for the minio driver")
		}
		if c.Media.MinIO.Bucket == "" {
			problems = append(problems, "media.minio.bucket is required for the minio driver")
		}
	default:
		return fmt.Errorf("%w: media.driver %q", kerrors.ErrUnknownStoreDriver, c.Media.Driver)
	}

	if c.Realtime.PollInterval.Duration <= 0 {
		problems = append(problems, "realtime.poll_interval must be positive")
	}
	if c.Realtime.MaxBackoff.Duration < c.Realtime.PollInterval.Duration {
		problems = append(problems, "realtime.max_backoff must not be shorter than realtime.poll_interval")
	}

	if c.User.Identity != "" && !utils.IsValidIdentity(c.User.Identity) {
		problems = append(problems, fmt.Sprintf("user.identity %q contains unsupported characters", c.User.Identity))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", kerrors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RequireIdentity returns the configured identity or ErrInvalidConfig.
func (c *Config) RequireIdentity() (string, error) {
	if c.User.Identity == "" {
		return "", fmt.Errorf("%w: user.identity is not set (run 'tecza config init' or set %s)", kerrors.ErrInvalidConfig, EnvIdentity)
	}
	return c.User.Identity, nil
}
