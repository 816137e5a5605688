package cryptoutil_test

import (
	"strings"
	"testing"

	"github.com/saltyvip/turnstile/cryptoutil"
	"github.com/stretchr/testify/require"
)

func TestGenerateNonceLengthAndAlphabet(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	nonce, err := cryptoutil.GenerateNonce(32)
	require.NoError(t, err)
	require.Len(t, nonce, 32)
	for _, r := range nonce {
		require.True(t, strings.ContainsRune(alphabet, r), "unexpected character %q", r)
	}
}

func TestGenerateNonceDefaultLength(t *testing.T) {
	nonce, err := cryptoutil.GenerateNonce(0)
	require.NoError(t, err)
	require.Len(t, nonce, cryptoutil.DefaultNonceLength)
}

func TestGenerateNonceUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		nonce, err := cryptoutil.GenerateNonce(32)
		require.NoError(t, err)
		_, dup := seen[nonce]
		require.False(t, dup, "nonce repeated")
		seen[nonce] = struct{}{}
	}
}

func TestSHA256Base64URL(t *testing.T) {
	// Known vector, and the output must already be URL safe.
	digest := cryptoutil.SHA256Base64URL("hello")
	require.Equal(t, "LPJNul-wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ", digest)
	require.NotContains(t, digest, "+")
	require.NotContains(t, digest, "/")
	require.NotContains(t, digest, "=")

	require.Equal(t, digest, cryptoutil.SHA256Base64URL("hello"))
	require.NotEqual(t, digest, cryptoutil.SHA256Base64URL("hello2"))
}

func TestSHA256Hex(t *testing.T) {
	require.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		cryptoutil.SHA256Hex("hello"))
}

func TestVerifyNonce(t *testing.T) {
	require.True(t, cryptoutil.VerifyNonce("abc", "abc"))
	require.False(t, cryptoutil.VerifyNonce("abc", "abd"))
	require.False(t, cryptoutil.VerifyNonce("", "abc"))
	require.False(t, cryptoutil.VerifyNonce("abc", ""))
}
