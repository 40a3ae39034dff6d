package secrets

import (
	"sync"
	"testing"
)

var (
	testKeyPairsOnce sync.Once
	testKeyPairs     [2]*KeyPair
	testKeyPairsErr  error
)

// sharedKeyPairs returns two keypairs generated once per test binary.
func sharedKeyPairs(t *testing.T) (*KeyPair, *KeyPair) {
	t.Helper()
	testKeyPairsOnce.Do(func() {
		for i := range testKeyPairs {
			testKeyPairs[i], testKeyPairsErr = GenerateKeyPair()
			if testKeyPairsErr != nil {
				return
			}
		}
	})
	if testKeyPairsErr != nil {
		t.Fatalf("Failed to generate key pairs: %v", testKeyPairsErr)
	}
	return testKeyPairs[0], testKeyPairs[1]
}

func mustSymmetricKey(t *testing.T) SymmetricKey {
	t.Helper()
	key, err := GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey() error = %v", err)
	}
	return key
}
