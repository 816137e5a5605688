package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saltyvip/turnstile/internal/config"
)

func TestValidateReportsMissingRequiredValues(t *testing.T) {
	t.Setenv("TURNSTILE_AUTHORITY", "")
	t.Setenv("TURNSTILE_CLIENT_ID", "")

	err := config.Validate(config.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
	require.Contains(t, err.Error(), "TURNSTILE_AUTHORITY")
	require.Contains(t, err.Error(), "TURNSTILE_CLIENT_ID")
}

func TestValidatePassesWithRequiredValues(t *testing.T) {
	t.Setenv("TURNSTILE_AUTHORITY", "https://auth.salty.vip")
	t.Setenv("TURNSTILE_CLIENT_ID", "turnstile-web")

	require.NoError(t, config.Validate(config.New()))
}

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, "Turnstile", c.GetAppName())
	require.Equal(t, "http://127.0.0.1:8642/auth/callback", c.GetRedirectURI())
	require.NotZero(t, c.GetTokenCacheDuration())
	require.Equal(t, 5, c.GetMaxRetries())
}

func TestSyncStatePathFollowsChannelName(t *testing.T) {
	t.Setenv("FOLDER", "/tmp/turnstile-test")
	c := config.New()
	require.Equal(t, filepath.Join("/tmp/turnstile-test", c.GetSyncChannelName()+".json"),
		c.GetSyncStatePath())
}

func TestPreviewOriginsParsing(t *testing.T) {
	t.Setenv("TURNSTILE_ALLOWED_PREVIEW_ORIGINS", "https://pr-1.salty.vip, https://pr-2.salty.vip ,")
	c := config.New()
	require.Equal(t, []string{"https://pr-1.salty.vip", "https://pr-2.salty.vip"},
		c.GetAllowedPreviewOrigins())
}
