// Package secrets provides the cryptographic engines of the messaging core.
//
// # Encryption Architecture
//
// tecza uses a hybrid encryption scheme per conversation:
//
//  1. A random 256-bit symmetric key encrypts every message and media file
//     in the conversation (AES-256-GCM, 96-bit random IV per call)
//  2. Each participant's RSA-OAEP public key wraps a copy of that key
//  3. Participants unwrap their copy with their private key, then decrypt
//
// Participants who have not published a public key receive the raw key
// (DistributionRawExported). That path is weaker and callers log it.
//
// # Keys
//
// RSA keypairs are 2048 bits with e = 65537 and SHA-256 OAEP. PrivateKey
// only unwraps conversation keys; it has no general decryption method.
// Public keys travel as base64 SPKI, private keys as base64 PKCS#8 and only
// inside a vault.
//
// # Payloads
//
// EncryptText and EncryptFile never take a nonce from the caller. Each call
// reads a fresh IV from crypto/rand and returns it next to the ciphertext.
// Any decryption failure is reported as ErrDecryptionFailed.
//
// All functions are synchronous, perform no I/O and are safe for concurrent
// use.
package secrets
