package security_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/saltyvip/turnstile/security"
	"github.com/saltyvip/turnstile/storage/storefakes"
	"github.com/stretchr/testify/require"
)

type flowState struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

func newSessionStoreFixture(t *testing.T) (*security.SessionStore, *storefakes.FakeStore, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := storefakes.NewFakeStore()
	sessions, err := security.NewSessionStore(store,
		filepath.Join(t.TempDir(), "session.key"),
		security.WithSessionNowTime(func() time.Time { return now }),
	)
	require.NoError(t, err)
	return sessions, store, &now
}

func TestSessionStoreRoundTrip(t *testing.T) {
	sessions, _, _ := newSessionStoreFixture(t)

	in := flowState{State: "state-1", Verifier: "verifier-1"}
	require.NoError(t, sessions.Set("oidc_flow_state-1", in))

	var out flowState
	require.True(t, sessions.Get("oidc_flow_state-1", time.Hour, &out))
	require.Equal(t, in, out)
}

func TestSessionStoreMaxAge(t *testing.T) {
	sessions, store, now := newSessionStoreFixture(t)

	require.NoError(t, sessions.Set("flow", flowState{State: "s"}))

	*now = now.Add(25 * time.Hour)
	var out flowState
	require.False(t, sessions.Get("flow", 0, &out)) // default 24h window
	require.Zero(t, store.Len())                    // expired entries are deleted
}

func TestSessionStoreCorruptEntry(t *testing.T) {
	sessions, store, _ := newSessionStoreFixture(t)

	require.NoError(t, store.Set("secure_flow", []byte("garbage not sealed")))

	var out flowState
	require.False(t, sessions.Get("flow", time.Hour, &out))
	require.Zero(t, store.Len())
}

func TestSessionStoreRemoveIdempotent(t *testing.T) {
	sessions, _, _ := newSessionStoreFixture(t)

	require.NoError(t, sessions.Set("flow", flowState{State: "s"}))
	sessions.Remove("flow")
	sessions.Remove("flow")

	var out flowState
	require.False(t, sessions.Get("flow", time.Hour, &out))
}

func TestSessionStoreKeyPersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "session.key")
	store := storefakes.NewFakeStore()

	first, err := security.NewSessionStore(store, keyPath)
	require.NoError(t, err)
	require.NoError(t, first.Set("flow", flowState{State: "persisted"}))

	// A second store with the same key file can read entries from the first.
	second, err := security.NewSessionStore(store, keyPath)
	require.NoError(t, err)
	var out flowState
	require.True(t, second.Get("flow", time.Hour, &out))
	require.Equal(t, "persisted", out.State)
}
