// Package cryptoutil provides the nonce and digest primitives used by the
// authentication flows: CSPRNG-backed nonce generation and URL-safe base64
// SHA-256 hashing. The hash of a nonce is what gets sent to an identity
// provider; the original nonce never leaves the client.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
)

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultNonceLength is used when GenerateNonce is called with a
// non-positive length.
const DefaultNonceLength = 32

// GenerateNonce draws length cryptographically secure random bytes and maps
// each onto the 62-character alphanumeric alphabet.
func GenerateNonce(length int) (string, error) {
	if length <= 0 {
		length = DefaultNonceLength
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "[GenerateNonce] rand.Read")
	}
	out := make([]byte, length)
	for i, b := range raw {
		out[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(out), nil
}

// SHA256Base64URL hashes data with SHA-256 and returns the digest as
// unpadded URL-safe base64.
func SHA256Base64URL(data string) string {
	digest := sha256.Sum256([]byte(data))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(digest[:])
}

// SHA256Hex hashes data with SHA-256 and returns the digest hex encoded.
func SHA256Hex(data string) string {
	digest := sha256.Sum256([]byte(data))
	return hex.EncodeToString(digest[:])
}

// VerifyNonce compares a nonce extracted from an ID token against the stored
// original in constant time. Empty values never match.
func VerifyNonce(tokenNonce, storedNonce string) bool {
	if tokenNonce == "" || storedNonce == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tokenNonce), []byte(storedNonce)) == 1
}
