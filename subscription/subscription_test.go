package subscription_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saltyvip/turnstile/subscription"
)

func TestSubscriptionFromRolesPicksHighestPriority(t *testing.T) {
	config := subscription.DefaultAccessConfig()

	sub := subscription.SubscriptionFromRoles([]string{"surfing-premium", "surfing-free"}, config)
	require.Equal(t, subscription.TierPremium, sub.Tier)
	require.Equal(t, subscription.StatusActive, sub.Status)

	// Order independent.
	reversed := subscription.SubscriptionFromRoles([]string{"surfing-free", "surfing-premium"}, config)
	require.Equal(t, sub, reversed)
}

func TestSubscriptionFromRolesDefaults(t *testing.T) {
	config := subscription.DefaultAccessConfig()

	for _, roles := range [][]string{nil, {}, {"unrelated-role", "admin"}} {
		sub := subscription.SubscriptionFromRoles(roles, config)
		require.Equal(t, subscription.TierFree, sub.Tier)
		require.Equal(t, subscription.StatusActive, sub.Status)
	}
}

func TestSubscriptionIgnoresUnknownRoles(t *testing.T) {
	config := subscription.DefaultAccessConfig()

	sub := subscription.SubscriptionFromRoles([]string{"org-admin", "surfing-standard", "viewer"}, config)
	require.Equal(t, subscription.TierStandard, sub.Tier)
}

func TestNewAccessConfigRejectsMissingTierMapping(t *testing.T) {
	_, err := subscription.NewAccessConfig(
		map[string]int{"a": 0, "b": 1},
		map[string]subscription.Tier{"a": subscription.TierFree},
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"b"`)
}

func TestNewAccessConfigRejectsInconsistentEqualPriorities(t *testing.T) {
	_, err := subscription.NewAccessConfig(
		map[string]int{"a": 1, "b": 1},
		map[string]subscription.Tier{"a": subscription.TierFree, "b": subscription.TierPremium},
	)
	require.ErrorIs(t, err, subscription.ErrInconsistentMapping)
}

func TestNewAccessConfigAllowsConsistentEqualPriorities(t *testing.T) {
	config, err := subscription.NewAccessConfig(
		map[string]int{"legacy-premium": 2, "surfing-premium": 2},
		map[string]subscription.Tier{
			"legacy-premium":  subscription.TierPremium,
			"surfing-premium": subscription.TierPremium,
		},
	)
	require.NoError(t, err)

	sub := subscription.SubscriptionFromRoles([]string{"legacy-premium"}, config)
	require.Equal(t, subscription.TierPremium, sub.Tier)
}

func TestHasRole(t *testing.T) {
	roles := []string{"surfing-free", "beta-tester"}
	require.True(t, subscription.HasRole(roles, "beta-tester"))
	require.False(t, subscription.HasRole(roles, "surfing-premium"))
	require.False(t, subscription.HasRole(nil, "anything"))
}

func TestHasRequiredRole(t *testing.T) {
	config := subscription.DefaultAccessConfig()

	// Higher priority satisfies a lower requirement.
	require.True(t, subscription.HasRequiredRole([]string{"surfing-premium"}, "surfing-standard", config))
	// Exact match satisfies.
	require.True(t, subscription.HasRequiredRole([]string{"surfing-standard"}, "surfing-standard", config))
	// Lower priority does not.
	require.False(t, subscription.HasRequiredRole([]string{"surfing-free"}, "surfing-standard", config))
	// Unknown required role never passes.
	require.False(t, subscription.HasRequiredRole([]string{"surfing-premium"}, "surfing-enterprise", config))
	// Multiple roles: any qualifying role is enough.
	require.True(t, subscription.HasRequiredRole([]string{"viewer", "surfing-premium"}, "surfing-free", config))
}

func TestHighestTierRole(t *testing.T) {
	config := subscription.DefaultAccessConfig()

	require.Equal(t, "surfing-premium",
		subscription.HighestTierRole([]string{"surfing-free", "surfing-premium", "surfing-standard"}, config))
	require.Empty(t, subscription.HighestTierRole([]string{"unmapped"}, config))
}

func TestDisplayNames(t *testing.T) {
	require.Equal(t, "Premium", subscription.TierDisplayName(subscription.TierPremium))
	require.Equal(t, "Free", subscription.TierDisplayName(subscription.TierFree))
	require.Equal(t, "gold", subscription.TierDisplayName(subscription.Tier("gold")))

	require.Equal(t, "Active", subscription.StatusDisplayName(subscription.StatusActive))
	require.Equal(t, "Payment overdue", subscription.StatusDisplayName(subscription.StatusPastDue))
}
