package errors

import "errors"

// Key format errors indicate malformed key material supplied by a caller.
var (
	// ErrInvalidKeyFormat indicates malformed base64, a wrong byte length, or an unsupported key type.
	ErrInvalidKeyFormat = errors.New("invalid key format")
)

// Cryptographic errors indicate failures during encryption, decryption, or key unwrapping.
var (
	// ErrDecryptionFailed indicates an authentication-tag mismatch, wrong key, or tampered payload.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUnwrapFailed indicates a wrapped key was not produced for the local keypair.
	ErrUnwrapFailed = errors.New("failed to unwrap symmetric key")

	// ErrEncryptFailed indicates encryption could not be performed.
	ErrEncryptFailed = errors.New("encryption failed")
)

// Vault errors indicate failures of the passphrase-protected key export.
var (
	// ErrWrongPassphraseOrCorruptVault is deliberately returned for both a wrong passphrase and corrupt data.
	ErrWrongPassphraseOrCorruptVault = errors.New("wrong passphrase or corrupt vault")

	// ErrUnsupportedVaultVersion indicates the vault was written by an unknown format version.
	ErrUnsupportedVaultVersion = errors.New("unsupported vault version")

	// ErrInvalidVault indicates the vault document could not be parsed.
	ErrInvalidVault = errors.New("invalid vault document")

	// ErrEmptyPassphrase indicates an empty passphrase was supplied for a new vault.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
)

// Key manager errors indicate issues with the session's private key.
var (
	// ErrNoKeyLoaded indicates no private key has been generated or imported in this session.
	ErrNoKeyLoaded = errors.New("no private key loaded")

	// ErrAlreadyInitialized indicates a private key has already been installed in this session.
	ErrAlreadyInitialized = errors.New("private key already initialized for this session")
)

// Conversation errors indicate a conversation cannot be used for messaging.
var (
	// ErrKeyUnavailable indicates the conversation key could not be resolved.
	ErrKeyUnavailable = errors.New("conversation key unavailable")

	// ErrParticipantKeyMissing indicates the wrapped key map has no entry for the participant.
	ErrParticipantKeyMissing = errors.New("no wrapped key for participant")

	// ErrNoParticipants indicates a conversation was requested without participants.
	ErrNoParticipants = errors.New("conversation has no participants")

	// ErrKeyEpochMismatch indicates a message was encrypted under a different key epoch.
	ErrKeyEpochMismatch = errors.New("message key epoch does not match session")
)

// Store errors indicate records missing from the external store.
var (
	// ErrConversationNotFound indicates the conversation record does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrPublicKeyNotFound indicates the identity has not published a public key.
	ErrPublicKeyNotFound = errors.New("public key not found")

	// ErrBlobNotFound indicates a media blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrMessageNotFound indicates the message record does not exist.
	ErrMessageNotFound = errors.New("message not found")
)

// Configuration errors indicate a malformed or incomplete config file.
var (
	// ErrInvalidConfig indicates the configuration is malformed or incomplete.
	ErrInvalidConfig = errors.New("configuration is invalid")

	// ErrUnknownStoreDriver indicates an unrecognized store or media driver name.
	ErrUnknownStoreDriver = errors.New("unknown store driver")
)

// Command errors indicate problems with user input or local files.
var (
	// ErrConfigExists indicates config init would overwrite an existing config file.
	ErrConfigExists = errors.New("config file already exists")

	// ErrVaultExists indicates a vault would overwrite an existing vault file.
	ErrVaultExists = errors.New("vault file already exists")

	// ErrVaultNotFound indicates no vault file exists at the configured path.
	ErrVaultNotFound = errors.New("vault file not found")

	// ErrInvalidID indicates a conversation or message ID could not be parsed.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrInvalidDateFormat indicates a date filter is not in YYYY-MM-DD format.
	ErrInvalidDateFormat = errors.New("invalid date format")
)
