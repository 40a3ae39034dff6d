package configs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/asterixix/tecza/internal/utils"
)

const appName = "tecza"

// Settings holds the resolved per-user directories.
type Settings struct {
	ConfigDir  string
	DataDir    string
	RuntimeDir string
}

// ResolveSettings computes the directories from the XDG environment,
// falling back to the usual locations under the home directory.
func ResolveSettings() (*Settings, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error getting config directory: %w", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		username, err := utils.GetUsername()
		if err != nil {
			return nil, fmt.Errorf("error getting username: %w", err)
		}
		runtimeDir = filepath.Join(os.TempDir(), appName+"-"+utils.SanitizeFileComponent(username))
	} else {
		runtimeDir = filepath.Join(runtimeDir, appName)
	}

	return &Settings{
		ConfigDir:  filepath.Join(configDir, appName),
		DataDir:    filepath.Join(dataDir, appName),
		RuntimeDir: runtimeDir,
	}, nil
}

// SettingsForRoot places every directory under root. Used by tests and
// the --home flag.
func SettingsForRoot(root string) *Settings {
	return &Settings{
		ConfigDir:  filepath.Join(root, "config"),
		DataDir:    filepath.Join(root, "data"),
		RuntimeDir: filepath.Join(root, "run"),
	}
}

// ConfigPath is the location of config.toml.
func (s *Settings) ConfigPath() string {
	return filepath.Join(s.ConfigDir, "config.toml")
}

// DatabasePath is the default SQLite database location.
func (s *Settings) DatabasePath() string {
	return filepath.Join(s.DataDir, appName+".db")
}

// AuditPath is the location of the audit log.
func (s *Settings) AuditPath() string {
	return filepath.Join(s.DataDir, "audit.jsonl")
}

// VaultPath is the default location of the exported key vault.
func (s *Settings) VaultPath() string {
	return filepath.Join(s.DataDir, "vault.json")
}

// SessionPath is the session file for identity. It lives in the runtime
// directory so it does not outlive the login session.
func (s *Settings) SessionPath(identity string) string {
	return filepath.Join(s.RuntimeDir, "session-"+utils.SanitizeFileComponent(identity)+".toml")
}
