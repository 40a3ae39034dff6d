package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	kerrors "github.com/asterixix/tecza/internal/errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is the vault format written by EncryptPrivateKey.
	Version = 1

	// Iterations is the PBKDF2-SHA256 iteration count for Version 1.
	Iterations = 150000

	// SaltSize is the PBKDF2 salt size in bytes (128 bits).
	SaltSize = 16
	// IVSize is the AES-GCM IV size in bytes (96 bits).
	IVSize = 12
	// KeySize is the derived AES-256 key size in bytes.
	KeySize = 32
)

// Blob is a passphrase-encrypted private key export. Its JSON form is the
// portable artifact users copy between devices.
type Blob struct {
	Version    int    `json:"v"`
	Salt       string `json:"salt_b64"`
	IV         string `json:"iv_b64"`
	Ciphertext string `json:"cipher_b64"`
}

// params holds the KDF settings for one vault version.
type params struct {
	iterations int
}

var versions = map[int]params{
	1: {iterations: Iterations},
}

// EncryptPrivateKey seals a base64 PKCS#8 private key under a key derived
// from passphrase. Salt and IV are freshly random on every call, so two
// exports of the same key with the same passphrase are unlinkable.
func EncryptPrivateKey(pkcs8 string, passphrase string) (*Blob, error) {
	if passphrase == "" {
		return nil, kerrors.ErrEmptyPassphrase
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	gcm, err := deriveAEAD(passphrase, salt, versions[Version])
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, iv, []byte(pkcs8), nil)

	return &Blob{
		Version:    Version,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// DecryptPrivateKey recovers the base64 PKCS#8 key from a vault. Unknown
// versions fail with ErrUnsupportedVaultVersion; every other failure is
// ErrWrongPassphraseOrCorruptVault, whatever the cause.
func DecryptPrivateKey(blob *Blob, passphrase string) (string, error) {
	if blob == nil {
		return "", kerrors.ErrWrongPassphraseOrCorruptVault
	}

	p, ok := versions[blob.Version]
	if !ok {
		return "", fmt.Errorf("%w: %d", kerrors.ErrUnsupportedVaultVersion, blob.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil || len(salt) != SaltSize {
		return "", kerrors.ErrWrongPassphraseOrCorruptVault
	}
	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil || len(iv) != IVSize {
		return "", kerrors.ErrWrongPassphraseOrCorruptVault
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", kerrors.ErrWrongPassphraseOrCorruptVault
	}

	gcm, err := deriveAEAD(passphrase, salt, p)
	if err != nil {
		return "", kerrors.ErrWrongPassphraseOrCorruptVault
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", kerrors.ErrWrongPassphraseOrCorruptVault
	}
	return string(plaintext), nil
}

func deriveAEAD(passphrase string, salt []byte, p params) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, p.iterations, KeySize, sha256.New)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Marshal renders the vault in its portable JSON form.
func Marshal(blob *Blob) ([]byte, error) {
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vault: %w", err)
	}
	return data, nil
}

// Parse reads the portable JSON form. It only checks structure; version
// and authenticity are checked by DecryptPrivateKey.
func Parse(data []byte) (*Blob, error) {
	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidVault, err)
	}
	return &blob, nil
}
