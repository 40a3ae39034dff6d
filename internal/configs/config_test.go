package configs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	kerrors "github.com/asterixix/tecza/internal/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	settings := SettingsForRoot(t.TempDir())
	config := DefaultConfig(settings)

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if config.Store.Driver != StoreDriverSQLite {
		t.Errorf("Expected sqlite driver, got %q", config.Store.Driver)
	}
	if config.Store.SQLitePath != settings.DatabasePath() {
		t.Errorf("Expected database path %q, got %q", settings.DatabasePath(), config.Store.SQLitePath)
	}
	if config.Realtime.PollInterval.Duration != time.Second {
		t.Errorf("Expected 1s poll interval, got %v", config.Realtime.PollInterval)
	}
	if _, err := config.RequireIdentity(); !errors.Is(err, kerrors.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without identity, got: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv(EnvIdentity, "")
	t.Setenv(EnvStorePath, "")
	t.Setenv(EnvMinIOEndpoint, "")

	settings := SettingsForRoot(t.TempDir())
	config, err := LoadConfig(settings)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.User.VaultPath != settings.VaultPath() {
		t.Errorf("Expected default vault path, got %q", config.User.VaultPath)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv(EnvIdentity, "")
	t.Setenv(EnvStorePath, "")
	t.Setenv(EnvMinIOEndpoint, "")

	settings := SettingsForRoot(t.TempDir())
	config := DefaultConfig(settings)
	config.User.Identity = "alice@example.com"
	config.Media.Driver = MediaDriverMinIO
	config.Media.MinIO.AccessKey = "minioadmin"
	config.Realtime.MaxBackoff = Duration{30 * time.Second}

	if err := SaveConfig(settings, config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	data, err := os.ReadFile(settings.ConfigPath())
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(data), `poll_interval = "1s"`) {
		t.Errorf("Expected durations to be written as strings:\n%s", data)
	}

	loaded, err := LoadConfig(settings)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	identity, err := loaded.RequireIdentity()
	if err != nil || identity != "alice@example.com" {
		t.Errorf("Expected identity alice@example.com, got %q (err %v)", identity, err)
	}
	if loaded.Media.Driver != MediaDriverMinIO || loaded.Media.MinIO.AccessKey != "minioadmin" {
		t.Errorf("Unexpected media config: %+v", loaded.Media)
	}
	if loaded.Realtime.MaxBackoff.Duration != 30*time.Second {
		t.Errorf("Expected 30s max backoff, got %v", loaded.Realtime.MaxBackoff)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	t.Setenv(EnvIdentity, "")
	t.Setenv(EnvStorePath, "")
	t.Setenv(EnvMinIOEndpoint, "")

	settings := SettingsForRoot(t.TempDir())
	if err := os.MkdirAll(settings.ConfigDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	content := "[user]\nidentity = \"bob\"\n"
	if err := os.WriteFile(settings.ConfigPath(), []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfig(settings)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.User.Identity != "bob" {
		t.Errorf("Expected identity bob, got %q", config.User.Identity)
	}
	if config.Store.SQLitePath != settings.DatabasePath() {
		t.Errorf("Expected omitted fields to keep defaults, got %q", config.Store.SQLitePath)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	settings := SettingsForRoot(t.TempDir())
	if err := os.MkdirAll(settings.ConfigDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(settings.ConfigPath(), []byte("[user\nidentity = "), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(settings); err == nil {
		t.Error("Expected an error for a malformed config")
	}
}

func TestApplyEnv(t *testing.T) {
	config := DefaultConfig(SettingsForRoot(t.TempDir()))
	env := map[string]string{
		EnvIdentity:      "carol",
		EnvStorePath:     "/tmp/other.db",
		EnvMinIOEndpoint: "minio:9000",
	}
	config.ApplyEnv(func(key string) string { return env[key] })

	if config.User.Identity != "carol" {
		t.Errorf("Expected identity carol, got %q", config.User.Identity)
	}
	if config.Store.SQLitePath != "/tmp/other.db" {
		t.Errorf("Expected store path override, got %q", config.Store.SQLitePath)
	}
	if config.Media.MinIO.Endpoint != "minio:9000" {
		t.Errorf("Expected minio endpoint override, got %q", config.Media.MinIO.Endpoint)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown store driver", func(c *Config) { c.Store.Driver = "postgres" }, kerrors.ErrUnknownStoreDriver},
		{"unknown media driver", func(c *Config) { c.Media.Driver = "s3" }, kerrors.ErrUnknownStoreDriver},
		{"missing sqlite path", func(c *Config) { c.Store.SQLitePath = "" }, kerrors.ErrInvalidConfig},
		{"minio without bucket", func(c *Config) {
			c.Media.Driver = MediaDriverMinIO
			c.Media.MinIO.Bucket = ""
		}, kerrors.ErrInvalidConfig},
		{"zero poll interval", func(c *Config) { c.Realtime.PollInterval = Duration{} }, kerrors.ErrInvalidConfig},
		{"backoff shorter than interval", func(c *Config) { c.Realtime.MaxBackoff = Duration{time.Millisecond} }, kerrors.ErrInvalidConfig},
		{"bad identity", func(c *Config) { c.User.Identity = "alice bob" }, kerrors.ErrInvalidConfig},
		{"memory store", func(c *Config) {
			c.Store.Driver = StoreDriverMemory
			c.Store.SQLitePath = ""
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig(SettingsForRoot(t.TempDir()))
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected valid config, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("Expected an error for an invalid duration")
	}
}

func TestSettingsPaths(t *testing.T) {
	root := t.TempDir()
	settings := SettingsForRoot(root)

	if got := settings.ConfigPath(); got != filepath.Join(root, "config", "config.toml") {
		t.Errorf("Unexpected config path %q", got)
	}
	if got := settings.SessionPath("alice@example.com"); filepath.Dir(got) != settings.RuntimeDir {
		t.Errorf("Expected session file in the runtime dir, got %q", got)
	}
	if a, b := settings.SessionPath("alice"), settings.SessionPath("bob"); a == b {
		t.Error("Expected distinct session files per identity")
	}
}

func TestResolveSettingsUsesXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "share"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(root, "run"))

	settings, err := ResolveSettings()
	if err != nil {
		t.Fatalf("ResolveSettings failed: %v", err)
	}
	if settings.DataDir != filepath.Join(root, "share", "tecza") {
		t.Errorf("Unexpected data dir %q", settings.DataDir)
	}
	if settings.RuntimeDir != filepath.Join(root, "run", "tecza") {
		t.Errorf("Unexpected runtime dir %q", settings.RuntimeDir)
	}
}
