package security

import "crypto/sha256"

// DeriveKey derives a 32-byte signing key from a configured secret
// string, so operators can supply passphrases of any length.
func DeriveKey(secret string) []byte {
	hash := sha256.Sum256([]byte(secret))
	return hash[:]
}
