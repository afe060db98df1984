package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

const (
	// ClaimCodeAlphabet excludes characters that are easy to misread
	// when an operator dictates the code over the phone (0/O, 1/I/L).
	ClaimCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	ClaimCodeLength   = 8

	DefaultSecretBytes = 32
)

// Generate returns a cryptographically random secret, URL-safe encoded.
func Generate(byteLen int) (string, error) {
	if byteLen <= 0 {
		byteLen = DefaultSecretBytes
	}
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash computes the SHA-256 hex digest used for secret storage. Raw
// secrets are only ever persisted where the holder must present them
// outward again; anywhere a comparison suffices, the hash is stored.
func Hash(value string) string {
	digest := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", digest)
}

// Equal compares two secrets in constant time. The inputs are hashed
// first so a length mismatch does not exit early.
func Equal(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// GenerateClaimCode returns a short code from the restricted alphabet,
// formatted as two dash-separated blocks for display.
func GenerateClaimCode() (string, error) {
	chars := make([]byte, ClaimCodeLength)
	max := big.NewInt(int64(len(ClaimCodeAlphabet)))
	for i := range chars {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate claim code: %w", err)
		}
		chars[i] = ClaimCodeAlphabet[n.Int64()]
	}
	half := ClaimCodeLength / 2
	return string(chars[:half]) + "-" + string(chars[half:]), nil
}

// NormalizeClaimCode uppercases the code and strips separators and
// whitespace so hand-typed variants compare equal.
func NormalizeClaimCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ClaimCodeHash binds a claim code to its claim id, so a leaked code is
// not replayable against a different claim.
func ClaimCodeHash(claimID, code string) string {
	return Hash(claimID + ":" + NormalizeClaimCode(code))
}
