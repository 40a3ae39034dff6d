package audit

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operation names recorded in the trail.
const (
	OpKeygen             = "keygen"
	OpKeyImport          = "key_import"
	OpVaultExport        = "vault_export"
	OpVaultImport        = "vault_import"
	OpConversationCreate = "conversation_create"
	OpGrant              = "grant"
	OpMigrate            = "migrate"
)

// Entry represents a single audit log entry. It never carries key
// material, passphrases or plaintext.
type Entry struct {
	Timestamp   string `json:"ts"`       // RFC3339 with microseconds.
	Identity    string `json:"identity"` // Local identity performing the action.
	Fingerprint string `json:"fingerprint,omitempty"`
	Operation   string `json:"op"`

	// Optional fields depending on operation.
	ConversationID string `json:"conversation_id,omitempty"` // For create/grant/migrate.
	Target         string `json:"target,omitempty"`          // For grant.
	Method         string `json:"method,omitempty"`          // For grant.
	WrappedCount   int    `json:"wrapped_count,omitempty"`   // For create/migrate.
	RawCount       int    `json:"raw_count,omitempty"`       // For create/migrate.
	Path           string `json:"path,omitempty"`            // For vault export/import.
}

// Trail appends entries to a JSON Lines file. A nil Trail, or one with an
// empty path, discards everything.
type Trail struct {
	mu   sync.Mutex
	path string
}

// NewTrail returns a Trail writing to path.
func NewTrail(path string) *Trail {
	return &Trail{path: path}
}

// Path returns the path of the audit log file.
func (t *Trail) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Log appends an entry to the audit log.
// If logging fails the entry is dropped; operations never fail because
// audit logging failed.
func (t *Trail) Log(entry Entry) {
	if t == nil || t.path == "" {
		return
	}

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(data, '\n'))
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func (t *Trail) ReadEntries() ([]Entry, error) {
	if t.Path() == "" {
		return nil, nil
	}

	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				// Partial writes leave truncated lines.
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
