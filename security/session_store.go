package security

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/saltyvip/turnstile/storage"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sessionKeyPrefix  = "secure_"
	sessionKeySize    = 32
	sessionNonceSize  = 24
	DefaultSessionAge = 24 * time.Hour
)

type sessionEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SessionStore keeps short-lived secrets (pending redirect flow state and
// similar) in durable storage, sealed with a machine-local key so other
// users on the host cannot read them from disk.
type SessionStore struct {
	store   storage.Store
	key     [sessionKeySize]byte
	nowTime func() time.Time
}

// SessionStoreOption modifies a SessionStore at construction.
type SessionStoreOption func(*SessionStore)

// WithSessionNowTime sets the time source (primarily for testing).
func WithSessionNowTime(nowFunc func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		s.nowTime = nowFunc
	}
}

// NewSessionStore opens the session store, creating the sealing key at
// keyPath on first use.
func NewSessionStore(store storage.Store, keyPath string, options ...SessionStoreOption) (*SessionStore, error) {
	if store == nil {
		return nil, errors.New("[NewSessionStore] store is required")
	}
	s := &SessionStore{store: store, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}

	raw, err := os.ReadFile(keyPath)
	switch {
	case err == nil && len(raw) == sessionKeySize:
		copy(s.key[:], raw)
	case err == nil:
		return nil, errors.Errorf("[NewSessionStore] key file %s has %d bytes, want %d", keyPath, len(raw), sessionKeySize)
	case os.IsNotExist(err):
		if _, err := rand.Read(s.key[:]); err != nil {
			return nil, errors.Wrap(err, "[NewSessionStore] rand.Read")
		}
		if err := os.WriteFile(keyPath, s.key[:], 0o600); err != nil {
			return nil, errors.Wrap(err, "[NewSessionStore] WriteFile")
		}
	default:
		return nil, errors.Wrap(err, "[NewSessionStore] ReadFile")
	}
	return s, nil
}

// Set seals value together with the current timestamp under key.
func (s *SessionStore) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "[SessionStore.Set] Marshal value")
	}
	envelope, err := json.Marshal(sessionEnvelope{
		Data:      data,
		Timestamp: s.nowTime().UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "[SessionStore.Set] Marshal envelope")
	}

	var nonce [sessionNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errors.Wrap(err, "[SessionStore.Set] rand.Read")
	}
	sealed := secretbox.Seal(nonce[:], envelope, &nonce, &s.key)

	return errors.Wrap(s.store.Set(sessionKeyPrefix+key, sealed), "[SessionStore.Set] store.Set")
}

// Get unseals the entry for key into out. It returns false, deleting the
// entry, when the entry is absent, older than maxAge, or unreadable.
func (s *SessionStore) Get(key string, maxAge time.Duration, out any) bool {
	if maxAge <= 0 {
		maxAge = DefaultSessionAge
	}
	sealed, err := s.store.Get(sessionKeyPrefix + key)
	if err != nil {
		return false
	}
	if len(sealed) < sessionNonceSize {
		s.Remove(key)
		return false
	}

	var nonce [sessionNonceSize]byte
	copy(nonce[:], sealed[:sessionNonceSize])
	envelope, ok := secretbox.Open(nil, sealed[sessionNonceSize:], &nonce, &s.key)
	if !ok {
		log.Warn().Str("key", key).Msg("discarding unreadable secure session entry")
		s.Remove(key)
		return false
	}

	var parsed sessionEnvelope
	if err := json.Unmarshal(envelope, &parsed); err != nil {
		s.Remove(key)
		return false
	}
	if s.nowTime().Sub(time.UnixMilli(parsed.Timestamp)) > maxAge {
		s.Remove(key)
		return false
	}
	if err := json.Unmarshal(parsed.Data, out); err != nil {
		s.Remove(key)
		return false
	}
	return true
}

// Remove deletes the entry for key. Removing an absent entry is fine.
func (s *SessionStore) Remove(key string) {
	if err := s.store.Delete(sessionKeyPrefix + key); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("secure session remove failed")
	}
}
