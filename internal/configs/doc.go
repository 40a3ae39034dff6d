// Package configs manages the tecza configuration file and per-user
// directories.
//
// Configuration is stored in TOML format at:
//
//	$XDG_CONFIG_HOME/tecza/config.toml
//
// # Sections
//
//   - [user]: the local identity and where its key vault is kept
//   - [store]: the store driver ("sqlite" or "memory") and database path
//   - [media]: where encrypted media goes ("store" or "minio"), with a
//     [media.minio] table for the bucket
//   - [realtime]: polling interval and maximum backoff for watching
//
// A missing file yields DefaultConfig. The TECZA_IDENTITY,
// TECZA_STORE_PATH and TECZA_MINIO_ENDPOINT environment variables
// override the file.
//
// # Settings
//
// ResolveSettings computes the config, data and runtime directories. The
// data directory holds the database, the audit log and the default vault
// file. The runtime directory holds session files, which record only a
// public key fingerprint.
package configs
