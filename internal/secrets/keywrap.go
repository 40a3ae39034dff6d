package secrets

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	kerrors "github.com/asterixix/tecza/internal/errors"
)

// PublicKey is a recipient key used only to wrap conversation keys.
type PublicKey struct {
	key *rsa.PublicKey
	der []byte
}

// PrivateKey is restricted to unwrapping conversation keys. It exposes no
// general-purpose decryption.
type PrivateKey struct {
	key *rsa.PrivateKey
	pub *PublicKey
}

// KeyPair binds one identity's public and private keys.
type KeyPair struct {
	Public  *PublicKey
	Private *PrivateKey
}

// GenerateKeyPair creates a new RSA-OAEP keypair (2048 bits, e = 65537).
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	priv, err := newPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: priv.pub, Private: priv}, nil
}

func newPublicKey(key *rsa.PublicKey) (*PublicKey, error) {
	if key.N.BitLen() != RSAKeyBits {
		return nil, fmt.Errorf("%w: RSA modulus is %d bits, want %d", kerrors.ErrInvalidKeyFormat, key.N.BitLen(), RSAKeyBits)
	}
	if key.E != RSAPublicExponent {
		return nil, fmt.Errorf("%w: unsupported RSA public exponent %d", kerrors.ErrInvalidKeyFormat, key.E)
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidKeyFormat, err)
	}
	return &PublicKey{key: key, der: der}, nil
}

func newPrivateKey(key *rsa.PrivateKey) (*PrivateKey, error) {
	pub, err := newPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key, pub: pub}, nil
}

// Public returns the public half of the private key.
func (p *PrivateKey) Public() *PublicKey {
	return p.pub
}

// ExportPublicKey encodes the key as base64 SPKI (PKIX DER).
func ExportPublicKey(pub *PublicKey) string {
	return encodeBase64(pub.der)
}

// ImportPublicKey parses a key produced by ExportPublicKey.
func ImportPublicKey(encoded string) (*PublicKey, error) {
	der, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not valid base64", kerrors.ErrInvalidKeyFormat)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidKeyFormat, err)
	}
	rsaPub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", kerrors.ErrInvalidKeyFormat)
	}
	return newPublicKey(rsaPub)
}

// Fingerprint identifies a public key without revealing anything secret:
// SHA-256 of the SPKI DER, base64url without padding.
func Fingerprint(pub *PublicKey) string {
	sum := sha256.Sum256(pub.der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// WrapKey encrypts the raw conversation key under the recipient's public key.
func WrapKey(key SymmetricKey, recipient *PublicKey) (string, error) {
	if recipient == nil {
		return "", fmt.Errorf("%w: no recipient public key", kerrors.ErrEncryptFailed)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient.key, key.b[:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kerrors.ErrEncryptFailed, err)
	}
	return encodeBase64(wrapped), nil
}

// UnwrapKey recovers a conversation key wrapped for this private key.
func UnwrapKey(wrapped string, priv *PrivateKey) (SymmetricKey, error) {
	if priv == nil {
		return SymmetricKey{}, kerrors.ErrNoKeyLoaded
	}
	return priv.Unwrap(wrapped)
}

// Unwrap recovers a conversation key wrapped for this private key.
func (p *PrivateKey) Unwrap(wrapped string) (SymmetricKey, error) {
	ct, err := decodeBase64(wrapped)
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("%w: wrapped key is not valid base64", kerrors.ErrUnwrapFailed)
	}
	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, p.key, ct, nil)
	if err != nil {
		return SymmetricKey{}, kerrors.ErrUnwrapFailed
	}
	key, err := symmetricKeyFromBytes(raw)
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("%w: %v", kerrors.ErrUnwrapFailed, err)
	}
	return key, nil
}

// ExportPrivateKey encodes the private key as base64 PKCS#8. The result is
// secret material and should only be handed to the vault.
func ExportPrivateKey(priv *PrivateKey) (string, error) {
	if priv == nil {
		return "", kerrors.ErrNoKeyLoaded
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv.key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	return encodeBase64(der), nil
}

// ImportPrivateKey parses a key produced by ExportPrivateKey.
func ImportPrivateKey(encoded string) (*PrivateKey, error) {
	der, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not valid base64", kerrors.ErrInvalidKeyFormat)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidKeyFormat, err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", kerrors.ErrInvalidKeyFormat)
	}
	if err := rsaKey.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidKeyFormat, err)
	}
	return newPrivateKey(rsaKey)
}
