package secrets

const (
	// SymmetricKeySize is the size of an AES-256 key in bytes.
	SymmetricKeySize = 32
	// NonceSize is the size of an AES-GCM IV in bytes (96 bits).
	NonceSize = 12
	// TagSize is the size of an AES-GCM authentication tag in bytes.
	TagSize = 16

	// RSAKeyBits is the modulus size of every keypair.
	RSAKeyBits = 2048
	// RSAPublicExponent is the fixed public exponent of every keypair.
	RSAPublicExponent = 65537
)
