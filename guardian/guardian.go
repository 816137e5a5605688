// Package guardian keeps a short-TTL record of the last successful auth
// validation so callers can skip redundant round trips to the auth server.
// It is an optimization only: token expiry checks elsewhere stay
// authoritative.
package guardian

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/saltyvip/turnstile/storage"
)

const (
	timestampKey = "auth_token_guardian_timestamp"
	userKey      = "auth_token_guardian_user"
)

// DefaultCacheDuration is how long a validation result is trusted.
const DefaultCacheDuration = 15 * time.Minute

// TokenInfo is the cached record of the last validated user.
type TokenInfo struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	ValidatedAt time.Time `json:"validatedAt"`
}

// Guardian is the token cache. Safe for concurrent use to the extent the
// underlying store is.
type Guardian struct {
	store         storage.Store
	cacheDuration time.Duration
	nowTime       func() time.Time
}

// Option modifies a Guardian at construction.
type Option func(*Guardian)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Guardian) {
		g.nowTime = nowFunc
	}
}

// New creates a Guardian over the store. A non-positive cacheDuration falls
// back to DefaultCacheDuration.
func New(store storage.Store, cacheDuration time.Duration, options ...Option) *Guardian {
	if cacheDuration <= 0 {
		cacheDuration = DefaultCacheDuration
	}
	g := &Guardian{
		store:         store,
		cacheDuration: cacheDuration,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *Guardian) storedTimestamp() (time.Time, bool) {
	raw, err := g.store.Get(timestampKey)
	if err != nil {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// IsCacheValid reports whether a validation happened within the cache
// duration.
func (g *Guardian) IsCacheValid() bool {
	validatedAt, ok := g.storedTimestamp()
	if !ok {
		return false
	}
	return g.nowTime().Sub(validatedAt) < g.cacheDuration
}

// UpdateTokenCache overwrites the validation timestamp and user record.
func (g *Guardian) UpdateTokenCache(userID, email string) error {
	now := g.nowTime()

	info := TokenInfo{UserID: userID, Email: email, ValidatedAt: now}
	data, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "[Guardian.UpdateTokenCache] Marshal")
	}
	if err := g.store.Set(timestampKey, []byte(strconv.FormatInt(now.UnixMilli(), 10))); err != nil {
		return errors.Wrap(err, "[Guardian.UpdateTokenCache] Set timestamp")
	}
	if err := g.store.Set(userKey, data); err != nil {
		return errors.Wrap(err, "[Guardian.UpdateTokenCache] Set user")
	}
	return nil
}

// GetCachedTokenInfo returns the cached user record, or nil when the cache
// is stale, absent, or unreadable. Corrupt data never causes an error.
func (g *Guardian) GetCachedTokenInfo() *TokenInfo {
	if !g.IsCacheValid() {
		return nil
	}
	raw, err := g.store.Get(userKey)
	if err != nil {
		return nil
	}
	var info TokenInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		log.Debug().Err(err).Msg("token cache user record unreadable, clearing")
		g.ClearTokenCache()
		return nil
	}
	return &info
}

// ClearTokenCache removes both records. Idempotent.
func (g *Guardian) ClearTokenCache() {
	if err := g.store.Delete(timestampKey); err != nil {
		log.Debug().Err(err).Msg("token cache timestamp delete failed")
	}
	if err := g.store.Delete(userKey); err != nil {
		log.Debug().Err(err).Msg("token cache user delete failed")
	}
}

// TimeRemaining reports how long the current cache entry stays valid, zero
// when there is no valid entry.
func (g *Guardian) TimeRemaining() time.Duration {
	validatedAt, ok := g.storedTimestamp()
	if !ok {
		return 0
	}
	remaining := g.cacheDuration - g.nowTime().Sub(validatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ForceRefresh invalidates the cache so the next check hits the auth
// server.
func (g *Guardian) ForceRefresh() {
	g.ClearTokenCache()
}
