package secrets

import "fmt"

// Distribution names how a conversation key copy was delivered to a
// participant. DistributionRawExported is weaker: anyone who can read the
// conversation record can read the key.
type Distribution string

const (
	DistributionWrappedByRSA Distribution = "rsa-oaep"
	DistributionRawExported  Distribution = "raw"
)

// Valid reports whether d is a known method. The empty value is accepted
// separately by callers as "untagged".
func (d Distribution) Valid() bool {
	return d == DistributionWrappedByRSA || d == DistributionRawExported
}

// Distribute produces one participant's copy of key: wrapped when the
// recipient has a public key, raw-exported otherwise.
func Distribute(key SymmetricKey, recipient *PublicKey) (Distribution, string, error) {
	if recipient == nil {
		return DistributionRawExported, ExportSymmetricKey(key), nil
	}
	wrapped, err := WrapKey(key, recipient)
	if err != nil {
		return "", "", fmt.Errorf("failed to wrap conversation key: %w", err)
	}
	return DistributionWrappedByRSA, wrapped, nil
}
