// Package utils provides small helpers shared by the command layer.
//
// # System Utilities
//
//   - GetUsername, GetHostname: facts about the current machine
//   - SanitizeFileComponent: makes an identity safe to use in a file name
//   - DefaultIdentity: suggests user@host for a fresh config
//
// # String Utilities
//
//   - IsValidIdentity: validates participant identities
//   - FormatPaths, Truncate: output formatting
//
// # I/O and Terminal Utilities
//
//   - ReadStdin, ReadAllNonEmpty: piped input such as message bodies
//   - ReadPassphrase, ReadPassphraseFromTTY: hidden passphrase prompts
//   - IsTerminal: terminal detection
package utils
