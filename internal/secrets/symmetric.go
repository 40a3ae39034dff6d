package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	kerrors "github.com/asterixix/tecza/internal/errors"
)

// SymmetricKey is an AES-256-GCM conversation key. The zero value is not a
// usable key; obtain one from GenerateSymmetricKey, ImportSymmetricKey or
// UnwrapKey.
type SymmetricKey struct {
	b [SymmetricKeySize]byte
}

// Equal reports whether two keys hold the same material, in constant time.
func (k SymmetricKey) Equal(other SymmetricKey) bool {
	return subtle.ConstantTimeCompare(k.b[:], other.b[:]) == 1
}

// TextPayload is an encrypted text message. Both fields are standard base64.
type TextPayload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// FilePayload is an encrypted binary payload with its base64 IV.
type FilePayload struct {
	Ciphertext []byte `json:"-"`
	IV         string `json:"iv"`
}

// GenerateSymmetricKey creates a new random 256-bit key.
func GenerateSymmetricKey() (SymmetricKey, error) {
	var k SymmetricKey
	if _, err := io.ReadFull(rand.Reader, k.b[:]); err != nil {
		return SymmetricKey{}, fmt.Errorf("failed to generate symmetric key: %w", err)
	}
	return k, nil
}

// ExportSymmetricKey encodes the raw key bytes as base64. This is the
// fallback distribution form for participants without a public key.
func ExportSymmetricKey(key SymmetricKey) string {
	return encodeBase64(key.b[:])
}

// ImportSymmetricKey decodes a key produced by ExportSymmetricKey.
func ImportSymmetricKey(encoded string) (SymmetricKey, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("%w: symmetric key is not valid base64", kerrors.ErrInvalidKeyFormat)
	}
	return symmetricKeyFromBytes(raw)
}

func symmetricKeyFromBytes(raw []byte) (SymmetricKey, error) {
	if len(raw) != SymmetricKeySize {
		return SymmetricKey{}, fmt.Errorf("%w: symmetric key is %d bytes, want %d", kerrors.ErrInvalidKeyFormat, len(raw), SymmetricKeySize)
	}
	var k SymmetricKey
	copy(k.b[:], raw)
	return k, nil
}

// EncryptText encrypts a text message under a fresh random IV.
func EncryptText(plaintext string, key SymmetricKey) (TextPayload, error) {
	ciphertext, nonce, err := seal(key, []byte(plaintext))
	if err != nil {
		return TextPayload{}, err
	}
	return TextPayload{
		Ciphertext: encodeBase64(ciphertext),
		IV:         encodeBase64(nonce),
	}, nil
}

// DecryptText reverses EncryptText. Any failure, including malformed
// base64, is reported as ErrDecryptionFailed.
func DecryptText(ciphertext, iv string, key SymmetricKey) (string, error) {
	ct, err := decodeBase64(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64", kerrors.ErrDecryptionFailed)
	}
	plaintext, err := DecryptFile(ct, iv, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptFile encrypts arbitrary bytes under a fresh random IV. Empty input
// is valid and produces a tag-only ciphertext.
func EncryptFile(data []byte, key SymmetricKey) (FilePayload, error) {
	ciphertext, nonce, err := seal(key, data)
	if err != nil {
		return FilePayload{}, err
	}
	return FilePayload{
		Ciphertext: ciphertext,
		IV:         encodeBase64(nonce),
	}, nil
}

// DecryptFile reverses EncryptFile.
func DecryptFile(ciphertext []byte, iv string, key SymmetricKey) ([]byte, error) {
	nonce, err := decodeBase64(iv)
	if err != nil {
		return nil, fmt.Errorf("%w: IV is not valid base64", kerrors.ErrDecryptionFailed)
	}
	return open(key, ciphertext, nonce)
}

func newGCM(key SymmetricKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.b[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// seal never accepts a caller-supplied nonce; every call draws a new one.
func seal(key SymmetricKey, plaintext []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", kerrors.ErrEncryptFailed, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to generate IV: %v", kerrors.ErrEncryptFailed, err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(key SymmetricKey, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: IV is %d bytes, want %d", kerrors.ErrDecryptionFailed, len(nonce), NonceSize)
	}
	if len(ciphertext) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", kerrors.ErrDecryptionFailed)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, kerrors.ErrDecryptionFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
