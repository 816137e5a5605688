package config

import "os"

const (
	authorityEnvVar = "TURNSTILE_AUTHORITY"
	clientIDEnvVar  = "TURNSTILE_CLIENT_ID"
)

type OIDCConfig interface {
	GetAuthority() string
	GetClientID() string
	GetRedirectURI() string
	GetPostLogoutURI() string
	GetOrgID() string
	GetIdPHints() map[string]string
}

type OIDC struct{}

var _ OIDCConfig = OIDC{}

func (OIDC) GetAuthority() string {
	return os.Getenv(authorityEnvVar)
}

func (OIDC) GetClientID() string {
	return os.Getenv(clientIDEnvVar)
}

func (OIDC) GetRedirectURI() string {
	return GetEnv("TURNSTILE_REDIRECT_URI", "http://127.0.0.1:8642/auth/callback")
}

func (OIDC) GetPostLogoutURI() string {
	return GetEnv("TURNSTILE_POST_LOGOUT_URI", "http://127.0.0.1:8642/")
}

// GetOrgID returns the optional organization id. When set, the org-scoping
// claim is appended to the requested scopes so users land in the right
// organization at the identity provider.
func (OIDC) GetOrgID() string {
	return os.Getenv("TURNSTILE_ORG_ID")
}

// GetIdPHints maps a federated provider name to the identity provider's
// idp_hint identifier. Unset providers are omitted.
func (OIDC) GetIdPHints() map[string]string {
	hints := make(map[string]string)
	for provider, envVar := range map[string]string{
		"google":    "TURNSTILE_IDP_GOOGLE",
		"github":    "TURNSTILE_IDP_GITHUB",
		"apple":     "TURNSTILE_IDP_APPLE",
		"microsoft": "TURNSTILE_IDP_MICROSOFT",
	} {
		if hint := os.Getenv(envVar); hint != "" {
			hints[provider] = hint
		}
	}
	return hints
}
