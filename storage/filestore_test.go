package storage_test

import (
	"testing"

	"github.com/saltyvip/turnstile/storage"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Set("auth_token_guardian_timestamp", []byte("1700000000000")))

	value, err := fs.Get("auth_token_guardian_timestamp")
	require.NoError(t, err)
	require.Equal(t, []byte("1700000000000"), value)

	require.NoError(t, fs.Set("auth_token_guardian_timestamp", []byte("2")))
	value, err = fs.Get("auth_token_guardian_timestamp")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
}

func TestFileStoreMissingKey(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileStoreDelete(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Set("secure_oidc_flow", []byte("x")))
	require.NoError(t, fs.Delete("secure_oidc_flow"))
	_, err = fs.Get("secure_oidc_flow")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is fine.
	require.NoError(t, fs.Delete("secure_oidc_flow"))
}

func TestFileStoreAwkwardKeys(t *testing.T) {
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := "../weird key/with:chars"
	require.NoError(t, fs.Set(key, []byte("ok")))
	value, err := fs.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), value)
}
