package guardian_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saltyvip/turnstile/guardian"
	"github.com/saltyvip/turnstile/storage/storefakes"
)

func guardianFixture(t *testing.T, cacheDuration time.Duration) (*guardian.Guardian, *storefakes.FakeStore, *time.Time) {
	t.Helper()
	store := storefakes.NewFakeStore()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g := guardian.New(store, cacheDuration, guardian.WithNowTime(func() time.Time { return now }))
	return g, store, &now
}

func TestCacheRoundTrip(t *testing.T) {
	g, _, _ := guardianFixture(t, 0)

	require.False(t, g.IsCacheValid())
	require.Nil(t, g.GetCachedTokenInfo())

	require.NoError(t, g.UpdateTokenCache("u1", "e1@example.com"))
	require.True(t, g.IsCacheValid())

	info := g.GetCachedTokenInfo()
	require.NotNil(t, info)
	require.Equal(t, "u1", info.UserID)
	require.Equal(t, "e1@example.com", info.Email)
}

func TestCacheExpiresAfterDuration(t *testing.T) {
	g, _, now := guardianFixture(t, 0)

	require.NoError(t, g.UpdateTokenCache("u1", "e1@example.com"))

	*now = now.Add(guardian.DefaultCacheDuration - time.Millisecond)
	require.True(t, g.IsCacheValid())

	*now = now.Add(2 * time.Millisecond)
	require.False(t, g.IsCacheValid())
	require.Nil(t, g.GetCachedTokenInfo())
}

func TestCorruptUserRecordReturnsNil(t *testing.T) {
	g, store, _ := guardianFixture(t, 0)

	require.NoError(t, g.UpdateTokenCache("u1", ""))
	require.NoError(t, store.Set("auth_token_guardian_user", []byte("{not json")))

	require.NotPanics(t, func() {
		require.Nil(t, g.GetCachedTokenInfo())
	})
	// The corrupt cache was cleared entirely.
	require.False(t, g.IsCacheValid())
}

func TestCorruptTimestampTreatedAsAbsent(t *testing.T) {
	g, store, _ := guardianFixture(t, 0)

	require.NoError(t, store.Set("auth_token_guardian_timestamp", []byte("yesterday")))
	require.False(t, g.IsCacheValid())
	require.Zero(t, g.TimeRemaining())
}

func TestClearTokenCacheIsIdempotent(t *testing.T) {
	g, _, _ := guardianFixture(t, 0)

	require.NoError(t, g.UpdateTokenCache("u1", ""))
	g.ClearTokenCache()
	require.False(t, g.IsCacheValid())
	require.NotPanics(t, g.ClearTokenCache)
}

func TestTimeRemaining(t *testing.T) {
	g, _, now := guardianFixture(t, 10*time.Minute)

	require.Zero(t, g.TimeRemaining())

	require.NoError(t, g.UpdateTokenCache("u1", ""))
	require.Equal(t, 10*time.Minute, g.TimeRemaining())

	*now = now.Add(4 * time.Minute)
	require.Equal(t, 6*time.Minute, g.TimeRemaining())

	*now = now.Add(10 * time.Minute)
	require.Zero(t, g.TimeRemaining())
}

func TestForceRefreshInvalidates(t *testing.T) {
	g, _, _ := guardianFixture(t, 0)

	require.NoError(t, g.UpdateTokenCache("u1", ""))
	g.ForceRefresh()
	require.False(t, g.IsCacheValid())
	require.Nil(t, g.GetCachedTokenInfo())
}

func TestUpdateOverwritesUnconditionally(t *testing.T) {
	g, _, now := guardianFixture(t, 0)

	require.NoError(t, g.UpdateTokenCache("u1", "first@example.com"))
	*now = now.Add(time.Minute)
	require.NoError(t, g.UpdateTokenCache("u2", "second@example.com"))

	info := g.GetCachedTokenInfo()
	require.NotNil(t, info)
	require.Equal(t, "u2", info.UserID)
	require.Equal(t, "second@example.com", info.Email)
}
