// Package audit records key and conversation lifecycle events.
//
// Key generation, vault export and import, conversation creation, grants
// and migrations are appended to a local audit log. Creation entries
// count how many participants received a wrapped key and how many only a
// raw-exported one, so weaker distributions stay visible after the fact.
//
// # Log Format
//
// The audit log is stored as JSON Lines (one JSON object per line) in the
// data directory:
//
//	$XDG_DATA_HOME/tecza/audit.jsonl
//
// Each entry contains:
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - Local identity and key fingerprint
//   - Operation name
//   - Operation-specific details (conversation, counts, paths)
//
// Entries never contain keys, passphrases or message contents.
//
// # Usage
//
//	trail := audit.NewTrail(settings.AuditPath)
//	trail.Log(audit.Entry{Identity: "alice", Operation: audit.OpKeygen})
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
//
// # Reading Logs
//
// Use ReadEntries() to parse the audit log for display or analysis.
// Malformed entries are silently skipped to handle partial writes.
package audit
