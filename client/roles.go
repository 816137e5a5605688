package client

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/saltyvip/turnstile/internal/utils"
)

const projectRolesClaim = "urn:zitadel:iam:org:project:roles"

// ExtractRoles pulls the role set out of verified ID-token claims. Two
// claim shapes are supported, first match wins:
//
//   - a flat string array at oidc_fields.flatRolesClaim (written by an
//     identity provider action)
//   - the Zitadel project-roles object, whose keys are the role names
//
// Neither shape present yields nil.
func ExtractRoles(claims map[string]any) []string {
	if fields, ok := claims["oidc_fields"].(map[string]any); ok {
		if flat, ok := fields["flatRolesClaim"].([]any); ok {
			return utils.ToStringSlice(flat)
		}
	}

	if projectRoles, ok := claims[projectRolesClaim].(map[string]any); ok {
		// Sorted for a deterministic role order.
		return utils.SortedKeys(projectRoles)
	}

	return nil
}

// RolesFromRawToken extracts roles directly from an ID token without
// signature verification. Only for re-deriving roles from a token that was
// already verified at sign-in; never a validity check.
func RolesFromRawToken(rawIDToken string) []string {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(rawIDToken, claims); err != nil {
		return nil
	}
	return ExtractRoles(claims)
}
