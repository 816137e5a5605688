package config

import (
	"fmt"
	"strings"
)

type Config interface {
	EnvConfig
	OIDCConfig
	SecurityConfig
	SyncConfig
	CacheConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetSiteURL() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OIDC
	Security
	Sync
	Cache
}

func New() Config {
	return mainConfig{}
}

// Validate checks that the required OIDC values are present. Everything else
// has a usable default; authority and client id do not.
func Validate(c Config) error {
	var missing []string
	if c.GetAuthority() == "" {
		missing = append(missing, authorityEnvVar)
	}
	if c.GetClientID() == "" {
		missing = append(missing, clientIDEnvVar)
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid configuration: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
