package security

import (
	"crypto/hmac"
	"crypto/sha256"
)

// normalizationKey is a fixed, non-secret key. HMAC-ing both sides of
// a comparison with it yields equal-length digests, so hmac.Equal runs
// in constant time regardless of the candidate's length.
var normalizationKey = []byte("opspilot/apikey-normalize/v1")

func normalizeKey(key string) []byte {
	mac := hmac.New(sha256.New, normalizationKey)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// EqualKeys compares two API keys in constant time.
func EqualKeys(a, b string) bool {
	return hmac.Equal(normalizeKey(a), normalizeKey(b))
}

// APIKeyVerifier checks candidates against the configured static keys.
type APIKeyVerifier struct {
	normalized [][]byte
}

// NewAPIKeyVerifier precomputes digests for the configured keys.
func NewAPIKeyVerifier(keys []string) *APIKeyVerifier {
	v := &APIKeyVerifier{}
	for _, key := range keys {
		if key == "" {
			continue
		}
		v.normalized = append(v.normalized, normalizeKey(key))
	}
	return v
}

// Verify reports whether candidate matches any configured key. Every
// configured key is checked so timing does not leak which one matched.
func (v *APIKeyVerifier) Verify(candidate string) bool {
	if candidate == "" || len(v.normalized) == 0 {
		return false
	}
	digest := normalizeKey(candidate)
	matched := false
	for _, known := range v.normalized {
		if hmac.Equal(digest, known) {
			matched = true
		}
	}
	return matched
}
