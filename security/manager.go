// Package security owns the security-sensitive bookkeeping around the
// authentication flows: single-use nonce lifecycle, failed-attempt lockout,
// callback origin allow-listing and encrypted short-lived session storage.
//
// Validation failures never return errors; they return false and emit a
// structured security event so callers decide what to surface.
package security

import (
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saltyvip/turnstile/cryptoutil"
)

// Event identifies a security event emitted to listeners.
type Event string

const (
	EventLoginAttempt      Event = "LOGIN_ATTEMPT"
	EventLoginSuccess      Event = "LOGIN_SUCCESS"
	EventLoginFailure      Event = "LOGIN_FAILURE"
	EventNonceUsed         Event = "NONCE_USED"
	EventRateLimitExceeded Event = "RATE_LIMIT_EXCEEDED"
	EventSecurityViolation Event = "SECURITY_VIOLATION"
)

// EventCallback receives security events. Callbacks run synchronously on the
// emitting goroutine; a panicking callback does not stop the others.
type EventCallback func(event Event, data map[string]any)

// Settings configures a Manager. Zero values fall back to the defaults.
type Settings struct {
	MaxNonceAge     time.Duration // nonce validity window (default 10m)
	MaxRetries      int           // failed attempts before lockout (default 5)
	LockoutDuration time.Duration // failed-attempt window (default 15m)
	AllowedOrigins  []string      // callback origin allow-list
	EnforceHTTPS    bool          // require https callbacks outside localhost
}

func (s Settings) withDefaults() Settings {
	if s.MaxNonceAge <= 0 {
		s.MaxNonceAge = 10 * time.Minute
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = 5
	}
	if s.LockoutDuration <= 0 {
		s.LockoutDuration = 15 * time.Minute
	}
	return s
}

// NoncePair is the secret nonce and the hash that may be sent to an identity
// provider in its place.
type NoncePair struct {
	Nonce string
	Hash  string
}

type nonceEntry struct {
	nonce     string
	hash      string
	createdAt time.Time
	used      bool
	userID    string
}

type failedAttempt struct {
	timestamp time.Time
	ip        string
	userAgent string
}

// Metrics is a point-in-time snapshot of the manager's state.
type Metrics struct {
	ActiveNonces       int
	TotalNonces        int
	FailedAttempts     int
	BlockedIdentifiers int
}

// Manager is the process-wide security state holder. Construct one at the
// application's composition root and pass it by reference; it is safe for
// concurrent use.
type Manager struct {
	settings Settings

	mu             sync.Mutex
	nonces         map[string]*nonceEntry
	failedAttempts map[string][]failedAttempt

	listenerMu   sync.Mutex
	listeners    map[int]EventCallback
	nextListener int

	nowTime       func() time.Time
	usedGrace     time.Duration
	sweepInterval time.Duration
	collectors    *collectors

	done      chan struct{}
	closeOnce sync.Once
}

// ManagerOption modifies a Manager at construction.
type ManagerOption func(*Manager)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithUsedNonceGrace tunes how long a consumed nonce entry is retained so a
// duplicate validation from a concurrent code path is reported as a replay
// rather than an unknown nonce.
func WithUsedNonceGrace(grace time.Duration) ManagerOption {
	return func(m *Manager) {
		m.usedGrace = grace
	}
}

// WithSweepInterval tunes the expired-nonce sweep period.
func WithSweepInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.sweepInterval = interval
	}
}

// NewManager creates a Manager and starts its background nonce sweep.
// Call Close to stop it.
func NewManager(settings Settings, options ...ManagerOption) *Manager {
	m := &Manager{
		settings:       settings.withDefaults(),
		nonces:         make(map[string]*nonceEntry),
		failedAttempts: make(map[string][]failedAttempt),
		listeners:      make(map[int]EventCallback),
		nowTime:        time.Now,
		usedGrace:      5 * time.Second,
		sweepInterval:  time.Minute,
		done:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}
	go m.sweepLoop()
	return m
}

// Close stops the background sweep and clears all stored state. Safe to call
// more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.mu.Lock()
	m.nonces = make(map[string]*nonceEntry)
	m.failedAttempts = make(map[string][]failedAttempt)
	m.mu.Unlock()
}

// GenerateAndStoreNonce creates a nonce entry keyed by its hash. The hash is
// what goes over the wire; the nonce stays client side until validation.
func (m *Manager) GenerateAndStoreNonce(userID string) (NoncePair, error) {
	nonce, err := cryptoutil.GenerateNonce(cryptoutil.DefaultNonceLength)
	if err != nil {
		return NoncePair{}, err
	}
	hash := cryptoutil.SHA256Base64URL(nonce)

	m.mu.Lock()
	m.nonces[hash] = &nonceEntry{
		nonce:     nonce,
		hash:      hash,
		createdAt: m.nowTime(),
		userID:    userID,
	}
	m.mu.Unlock()

	return NoncePair{Nonce: nonce, Hash: hash}, nil
}

// ValidateNonceHash validates a nonce that round-tripped through an identity
// provider: the stored hash identifies the entry and the received nonce must
// hash back to it. The entry is consumed on success.
func (m *Manager) ValidateNonceHash(storedHash, receivedNonce string) bool {
	return m.consumeNonce(storedHash, func(entry *nonceEntry) bool {
		return cryptoutil.SHA256Base64URL(receivedNonce) == storedHash
	})
}

// ValidateNonce validates against the stored original nonce directly, for
// flows where both values stayed local.
func (m *Manager) ValidateNonce(hash, providedNonce string) bool {
	return m.consumeNonce(hash, func(entry *nonceEntry) bool {
		return cryptoutil.VerifyNonce(providedNonce, entry.nonce)
	})
}

func (m *Manager) consumeNonce(hash string, matches func(*nonceEntry) bool) bool {
	m.mu.Lock()
	entry, ok := m.nonces[hash]
	if !ok {
		m.mu.Unlock()
		m.emit(EventSecurityViolation, map[string]any{"type": "NONCE_NOT_FOUND", "hash": hash})
		return false
	}
	if entry.used {
		createdAt := entry.createdAt
		m.mu.Unlock()
		m.emit(EventSecurityViolation, map[string]any{
			"type":      "NONCE_ALREADY_USED",
			"hash":      hash,
			"createdAt": createdAt,
		})
		return false
	}
	if m.nowTime().Sub(entry.createdAt) > m.settings.MaxNonceAge {
		delete(m.nonces, hash)
		createdAt := entry.createdAt
		m.mu.Unlock()
		m.emit(EventSecurityViolation, map[string]any{
			"type":      "NONCE_EXPIRED",
			"hash":      hash,
			"createdAt": createdAt,
		})
		return false
	}
	if !matches(entry) {
		m.mu.Unlock()
		m.emit(EventSecurityViolation, map[string]any{"type": "NONCE_MISMATCH", "hash": hash})
		return false
	}

	entry.used = true
	userID := entry.userID
	m.mu.Unlock()

	m.emit(EventNonceUsed, map[string]any{"hash": hash, "userId": userID})

	// Retain the used entry briefly so a duplicate validation is seen as a
	// replay, then drop it to bound memory.
	time.AfterFunc(m.usedGrace, func() {
		m.mu.Lock()
		delete(m.nonces, hash)
		m.mu.Unlock()
	})

	return true
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepExpiredNonces()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) sweepExpiredNonces() {
	now := m.nowTime()
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, entry := range m.nonces {
		if now.Sub(entry.createdAt) > m.settings.MaxNonceAge {
			delete(m.nonces, hash)
		}
	}
}

// RecordFailedAttempt appends a failed attempt for identifier, pruning
// entries that fell out of the lockout window.
func (m *Manager) RecordFailedAttempt(identifier, ip, userAgent string) {
	now := m.nowTime()

	m.mu.Lock()
	attempts := append(m.failedAttempts[identifier], failedAttempt{
		timestamp: now,
		ip:        ip,
		userAgent: userAgent,
	})
	recent := attempts[:0:0]
	for _, attempt := range attempts {
		if now.Sub(attempt.timestamp) < m.settings.LockoutDuration {
			recent = append(recent, attempt)
		}
	}
	m.failedAttempts[identifier] = recent
	limited := len(recent) >= m.settings.MaxRetries
	count := len(recent)
	m.mu.Unlock()

	if limited {
		m.emit(EventRateLimitExceeded, map[string]any{
			"identifier": identifier,
			"attempts":   count,
			"ip":         ip,
		})
	}
}

// IsRateLimited reports whether identifier reached the retry limit inside
// the lockout window.
func (m *Manager) IsRateLimited(identifier string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveAttemptCount(identifier) >= m.settings.MaxRetries
}

// ClearFailedAttempts forgets all attempts for identifier. Called once,
// right after a successful sign-in.
func (m *Manager) ClearFailedAttempts(identifier string) {
	m.mu.Lock()
	delete(m.failedAttempts, identifier)
	m.mu.Unlock()
}

// LockoutRemaining returns how long the identifier stays locked out, or zero
// when it is not locked.
func (m *Manager) LockoutRemaining(identifier string) time.Duration {
	now := m.nowTime()

	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest time.Time
	live := 0
	for _, attempt := range m.failedAttempts[identifier] {
		if now.Sub(attempt.timestamp) < m.settings.LockoutDuration {
			if live == 0 || attempt.timestamp.Before(oldest) {
				oldest = attempt.timestamp
			}
			live++
		}
	}
	if live < m.settings.MaxRetries {
		return 0
	}
	remaining := m.settings.LockoutDuration - now.Sub(oldest)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// caller must hold m.mu
func (m *Manager) liveAttemptCount(identifier string) int {
	now := m.nowTime()
	live := 0
	for _, attempt := range m.failedAttempts[identifier] {
		if now.Sub(attempt.timestamp) < m.settings.LockoutDuration {
			live++
		}
	}
	return live
}

// IsAllowedOrigin reports whether origin is on the callback allow-list.
func (m *Manager) IsAllowedOrigin(origin string) bool {
	for _, allowed := range m.settings.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// ValidateCallbackURL checks that a callback URL points at an allow-listed
// origin, over https when enforcement is on.
func (m *Manager) ValidateCallbackURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	origin := parsed.Scheme + "://" + parsed.Host
	if !m.IsAllowedOrigin(origin) {
		return false
	}
	if m.settings.EnforceHTTPS && parsed.Scheme != "https" && !isLoopbackHost(parsed.Hostname()) {
		return false
	}
	return true
}

// IsSecureConnection reports whether raw is acceptable for carrying
// credentials: https always, plain http only on loopback or when HTTPS
// enforcement is off.
func (m *Manager) IsSecureConnection(raw string) bool {
	if !m.settings.EnforceHTTPS {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme == "https" || isLoopbackHost(parsed.Hostname())
}

// SanitizeURL returns raw when it is an http(s) URL on an allowed origin,
// and "/" otherwise. Used before redirecting users to caller-supplied URLs.
func (m *Manager) SanitizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "/"
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "/"
	}
	if !m.IsAllowedOrigin(parsed.Scheme + "://" + parsed.Host) {
		return "/"
	}
	return parsed.String()
}

// AddListener subscribes to security events and returns an unsubscribe
// function.
func (m *Manager) AddListener(callback EventCallback) func() {
	m.listenerMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = callback
	m.listenerMu.Unlock()

	return func() {
		m.listenerMu.Lock()
		delete(m.listeners, id)
		m.listenerMu.Unlock()
	}
}

func (m *Manager) emit(event Event, data map[string]any) {
	m.observe(event, data)

	m.listenerMu.Lock()
	callbacks := make([]EventCallback, 0, len(m.listeners))
	for _, cb := range m.listeners {
		callbacks = append(callbacks, cb)
	}
	m.listenerMu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(event)).
						Msg("security listener panicked")
				}
			}()
			cb(event, data)
		}()
	}
}

// GetMetrics returns a snapshot of nonce and failed-attempt state.
func (m *Manager) GetMetrics() Metrics {
	now := m.nowTime()

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := Metrics{TotalNonces: len(m.nonces)}
	for _, entry := range m.nonces {
		if !entry.used && now.Sub(entry.createdAt) <= m.settings.MaxNonceAge {
			metrics.ActiveNonces++
		}
	}
	for identifier, attempts := range m.failedAttempts {
		metrics.FailedAttempts += len(attempts)
		if m.liveAttemptCount(identifier) >= m.settings.MaxRetries {
			metrics.BlockedIdentifiers++
		}
	}
	return metrics
}

// AllowedOriginSet deduplicates origins, dropping empty entries. Use it to
// seed Settings.AllowedOrigins from the redirect URI origin, the production
// site URL, the local development origin and any preview origins.
func AllowedOriginSet(origins ...string) []string {
	seen := make(map[string]struct{}, len(origins))
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "" {
			continue
		}
		if _, dup := seen[origin]; dup {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}

// OriginOf extracts scheme://host from a URL, or "" when unparseable.
func OriginOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
