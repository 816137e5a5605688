package config

import (
	"strconv"
	"time"
)

type CacheConfig interface {
	GetTokenCacheDuration() time.Duration
}

type Cache struct{}

var _ CacheConfig = Cache{}

// GetTokenCacheDuration controls how long a successful token validation is
// trusted before the auth server is consulted again. Configured in seconds.
func (Cache) GetTokenCacheDuration() time.Duration {
	raw := GetEnv("TURNSTILE_TOKEN_CACHE_DURATION", "900")
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		seconds = 900
	}
	return time.Duration(seconds) * time.Second
}
