// Package errors provides typed error values for tecza.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching.
//
// # Error Categories
//
//   - Key format errors: ErrInvalidKeyFormat
//   - Crypto errors: ErrDecryptionFailed, ErrUnwrapFailed
//   - Vault errors: ErrWrongPassphraseOrCorruptVault, ErrUnsupportedVaultVersion
//   - Key manager errors: ErrNoKeyLoaded, ErrAlreadyInitialized
//   - Conversation errors: ErrKeyUnavailable, ErrParticipantKeyMissing
//   - Store errors: ErrConversationNotFound, ErrPublicKeyNotFound
//   - Config errors: ErrInvalidConfig, ErrUnknownStoreDriver
//   - Command errors: ErrConfigExists, ErrVaultExists, ErrVaultNotFound, ErrInvalidID
//
// ErrWrongPassphraseOrCorruptVault is intentionally a single value: the vault
// never reports which part of its input was wrong.
//
// # Usage
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("importing key for %s: %w", identity, errors.ErrInvalidKeyFormat)
//
// Handle errors in the CLI layer:
//
//	if errors.Is(err, kerrors.ErrNoKeyLoaded) {
//	    // Point the user at `tecza vault import`
//	}
package errors
