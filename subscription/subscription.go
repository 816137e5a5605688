// Package subscription maps a user's role set to a subscription tier via a
// configurable role hierarchy. Everything here is pure: subscriptions are
// derived on demand and never persisted.
package subscription

import (
	"time"

	"github.com/pkg/errors"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// UserSubscription is the derived subscription for a user.
type UserSubscription struct {
	Tier              Tier
	Status            Status
	BillingCycle      string
	ExpiresAt         *time.Time
	CancelAtPeriodEnd bool
	StripeCustomerID  string
}

// AccessConfig relates role names to priorities and tiers. Build one with
// NewAccessConfig so the 1:1 priority-to-tier correspondence is checked.
type AccessConfig struct {
	roleHierarchy map[string]int
	roleToTier    map[string]Tier
}

// ErrInconsistentMapping is returned when two roles share a priority but
// map to different tiers, which would make tier derivation depend on map
// iteration order.
var ErrInconsistentMapping = errors.New("roles with equal priority must map to the same tier")

// NewAccessConfig validates and builds an AccessConfig. Every role in the
// hierarchy must have a tier mapping, and equal-priority roles must agree
// on their tier.
func NewAccessConfig(roleHierarchy map[string]int, roleToTier map[string]Tier) (AccessConfig, error) {
	tierByPriority := make(map[int]Tier)
	for role, priority := range roleHierarchy {
		tier, ok := roleToTier[role]
		if !ok {
			return AccessConfig{}, errors.Errorf("[NewAccessConfig] role %q has no tier mapping", role)
		}
		if existing, seen := tierByPriority[priority]; seen && existing != tier {
			return AccessConfig{}, errors.Wrapf(ErrInconsistentMapping, "[NewAccessConfig] priority %d", priority)
		}
		tierByPriority[priority] = tier
	}

	hierarchy := make(map[string]int, len(roleHierarchy))
	for role, priority := range roleHierarchy {
		hierarchy[role] = priority
	}
	tiers := make(map[string]Tier, len(roleToTier))
	for role, tier := range roleToTier {
		tiers[role] = tier
	}
	return AccessConfig{roleHierarchy: hierarchy, roleToTier: tiers}, nil
}

// DefaultAccessConfig is the platform's standard three-tier hierarchy.
func DefaultAccessConfig() AccessConfig {
	config, err := NewAccessConfig(
		map[string]int{
			"surfing-free":     0,
			"surfing-standard": 1,
			"surfing-premium":  2,
		},
		map[string]Tier{
			"surfing-free":     TierFree,
			"surfing-standard": TierStandard,
			"surfing-premium":  TierPremium,
		},
	)
	if err != nil {
		// The literal tables above are consistent.
		panic(err)
	}
	return config
}

// Priority returns the hierarchy priority for a role.
func (c AccessConfig) Priority(role string) (int, bool) {
	priority, ok := c.roleHierarchy[role]
	return priority, ok
}

// defaultSubscription is what a user with no mapped roles gets.
func defaultSubscription() UserSubscription {
	return UserSubscription{Tier: TierFree, Status: StatusActive}
}

// SubscriptionFromRoles collapses a role set into a subscription by picking
// the highest-priority role present in the hierarchy. Roles outside the
// hierarchy are ignored; no mapped role yields the free/active default.
// The result does not depend on role order.
func SubscriptionFromRoles(roles []string, config AccessConfig) UserSubscription {
	best, ok := highestPriorityRole(roles, config)
	if !ok {
		return defaultSubscription()
	}
	return UserSubscription{Tier: config.roleToTier[best], Status: StatusActive}
}

func highestPriorityRole(roles []string, config AccessConfig) (string, bool) {
	best := ""
	bestPriority := 0
	found := false
	for _, role := range roles {
		priority, ok := config.roleHierarchy[role]
		if !ok {
			continue
		}
		if !found || priority > bestPriority {
			best = role
			bestPriority = priority
			found = true
		}
	}
	return best, found
}

// HasRole reports whether role is literally present in roles.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasRequiredRole reports whether any of the user's roles meets or exceeds
// the required role's hierarchy priority. An unknown required role never
// passes.
func HasRequiredRole(roles []string, requiredRole string, config AccessConfig) bool {
	requiredPriority, ok := config.roleHierarchy[requiredRole]
	if !ok {
		return false
	}
	for _, role := range roles {
		if priority, known := config.roleHierarchy[role]; known && priority >= requiredPriority {
			return true
		}
	}
	return false
}

// HighestTierRole returns the hierarchy role with the highest priority in
// the set, empty string when none map.
func HighestTierRole(roles []string, config AccessConfig) string {
	best, _ := highestPriorityRole(roles, config)
	return best
}

// TierDisplayName renders a tier for the UI.
func TierDisplayName(tier Tier) string {
	switch tier {
	case TierPremium:
		return "Premium"
	case TierStandard:
		return "Standard"
	case TierFree:
		return "Free"
	default:
		return string(tier)
	}
}

// StatusDisplayName renders a status for the UI.
func StatusDisplayName(status Status) string {
	switch status {
	case StatusActive:
		return "Active"
	case StatusTrialing:
		return "Trial"
	case StatusPastDue:
		return "Payment overdue"
	case StatusCanceled:
		return "Canceled"
	default:
		return string(status)
	}
}
