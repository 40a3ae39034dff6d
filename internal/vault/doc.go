// Package vault encrypts a private key under a user passphrase so it can be
// carried to another device without any server-held secret.
//
// A vault is the JSON document
//
//	{ "v": 1, "salt_b64": "...", "iv_b64": "...", "cipher_b64": "..." }
//
// Version 1 derives an AES-256-GCM key with PBKDF2-HMAC-SHA256 over 150,000
// iterations and a 128-bit salt. The version number selects the KDF
// parameters, so raising the iteration count means adding a version rather
// than breaking old vaults.
//
// There is no recovery: a lost passphrase makes the vault unusable. Callers
// must tell the user so before exporting.
package vault
