package config

import (
	"os"
	"strings"
	"time"
)

type SecurityConfig interface {
	GetMaxNonceAge() time.Duration
	GetMaxRetries() int
	GetLockoutDuration() time.Duration
	GetAllowedPreviewOrigins() []string
	GetEnforceHTTPS() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetMaxNonceAge() time.Duration {
	return 10 * time.Minute
}

func (Security) GetMaxRetries() int {
	return 5
}

func (Security) GetLockoutDuration() time.Duration {
	return 15 * time.Minute
}

// GetAllowedPreviewOrigins returns extra callback origins for preview
// deployments, comma separated in the environment.
func (Security) GetAllowedPreviewOrigins() []string {
	raw := os.Getenv("TURNSTILE_ALLOWED_PREVIEW_ORIGINS")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (s Security) GetEnforceHTTPS() bool {
	return EnvVars{}.GetEnv() == "PROD"
}
