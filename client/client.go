// Package client implements the OIDC relying-party state machine: popup and
// redirect sign-in with PKCE, silent renewal, sign-out, and the event hooks
// the rest of the application consumes session state through.
package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/saltyvip/turnstile/authsync"
	"github.com/saltyvip/turnstile/guardian"
	"github.com/saltyvip/turnstile/security"
)

var (
	ErrFlowNotFound    = errors.New("no pending sign-in flow for state")
	ErrNoIDToken       = errors.New("token response carried no id_token")
	ErrNonceMismatch   = errors.New("nonce validation failed")
	ErrInvalidCallback = errors.New("invalid configuration: redirect URI rejected")
)

const (
	sessionKey       = "turnstile_session"
	redirectFlowKey  = "turnstile_redirect_flow"
	sessionMaxAge    = 24 * time.Hour
	flowMaxAge       = 10 * time.Minute
	expiringLeadTime = 60 * time.Second
	exchangeTimeout  = 30 * time.Second
)

// Config is the immutable OIDC configuration for a Client. A new Client
// must be constructed to change it.
type Config struct {
	Authority     string
	ClientID      string
	RedirectURI   string
	PostLogoutURI string
	OrgID         string
	Scopes        []string
	IdPHints      map[string]string
	PopupFeatures PopupFeatures
}

func (c Config) withDefaults() Config {
	if len(c.Scopes) == 0 {
		c.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if c.PopupFeatures == (PopupFeatures{}) {
		c.PopupFeatures = DefaultPopupFeatures
	}
	return c
}

// IDClaims is the verified content of an ID token that the client consumes.
type IDClaims struct {
	Subject string
	Nonce   string
	Expiry  time.Time
	Claims  map[string]any
}

// Verifier checks an ID token's signature and standard claims.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*IDClaims, error)
}

// Deps holds the collaborator dependencies for a Client.
type Deps struct {
	Security *security.Manager
	Sync     *authsync.Broadcaster
	Guardian *guardian.Guardian
	Sessions *security.SessionStore
	Launcher Launcher
}

// Client is the OIDC relying-party state machine. Safe for concurrent use.
type Client struct {
	config   Config
	deps     Deps
	oauth    oauth2.Config
	verifier Verifier

	endSessionURL string

	mu       sync.Mutex
	current  *User
	flows    map[string]*flow
	callback *callbackServer

	userLoadedListeners   map[int]func(*User)
	userUnloadedListeners map[int]func()
	expiringListeners     map[int]func()
	nextListenerID        int
	expiringTimer         *time.Timer

	nowTime func() time.Time
}

type flow struct {
	state        string
	nonce        string
	nonceHash    string
	codeVerifier string
	provider     string
	createdAt    time.Time
	result       chan callbackResult
}

// persistedFlow is the redirect-flow record kept in secure session storage
// between SignInRedirect and HandleRedirectCallback.
type persistedFlow struct {
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	NonceHash    string `json:"nonceHash"`
	CodeVerifier string `json:"codeVerifier"`
	Provider     string `json:"provider"`
}

// Option modifies a Client at construction.
type Option func(*Client)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithEndpoints supplies the provider endpoints directly, skipping OIDC
// discovery. Requires WithVerifier.
func WithEndpoints(endpoint oauth2.Endpoint, endSessionURL string) Option {
	return func(c *Client) {
		c.oauth.Endpoint = endpoint
		c.endSessionURL = endSessionURL
	}
}

// WithVerifier replaces the discovery-derived ID token verifier.
func WithVerifier(verifier Verifier) Option {
	return func(c *Client) {
		c.verifier = verifier
	}
}

// oidcVerifier adapts go-oidc's verifier to the Verifier interface.
type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v oidcVerifier) Verify(ctx context.Context, rawIDToken string) (*IDClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcVerifier.Verify] Verify")
	}
	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[oidcVerifier.Verify] Claims")
	}
	return &IDClaims{
		Subject: idToken.Subject,
		Nonce:   idToken.Nonce,
		Expiry:  idToken.Expiry,
		Claims:  claims,
	}, nil
}

// New constructs a Client. Unless WithEndpoints and WithVerifier are given,
// the provider's endpoints are discovered from the authority and ctx bounds
// that discovery. A previously persisted session is restored when present.
func New(ctx context.Context, config Config, deps Deps, options ...Option) (*Client, error) {
	if deps.Security == nil {
		return nil, errors.New("[client.New] Security manager is required")
	}
	if deps.Sync == nil {
		return nil, errors.New("[client.New] Sync broadcaster is required")
	}
	if deps.Guardian == nil {
		return nil, errors.New("[client.New] Guardian is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[client.New] Session store is required")
	}
	if deps.Launcher == nil {
		deps.Launcher = BrowserLauncher{}
	}

	config = config.withDefaults()

	c := &Client{
		config: config,
		deps:   deps,
		oauth: oauth2.Config{
			ClientID:    config.ClientID,
			RedirectURL: config.RedirectURI,
			Scopes:      config.Scopes,
		},
		flows:                 make(map[string]*flow),
		userLoadedListeners:   make(map[int]func(*User)),
		userUnloadedListeners: make(map[int]func()),
		expiringListeners:     make(map[int]func()),
		nowTime:               time.Now,
	}
	for _, opt := range options {
		opt(c)
	}

	if c.oauth.Endpoint == (oauth2.Endpoint{}) {
		provider, err := oidc.NewProvider(ctx, config.Authority)
		if err != nil {
			return nil, errors.Wrap(err, "[client.New] NewProvider")
		}
		c.oauth.Endpoint = provider.Endpoint()

		var providerClaims struct {
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}
		if err := provider.Claims(&providerClaims); err == nil {
			c.endSessionURL = providerClaims.EndSessionEndpoint
		}
		if c.verifier == nil {
			c.verifier = oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID})}
		}
	}
	if c.verifier == nil {
		return nil, errors.New("[client.New] WithEndpoints requires WithVerifier")
	}

	c.restoreSession()
	return c, nil
}

func (c *Client) restoreSession() {
	var user User
	if !c.deps.Sessions.Get(sessionKey, sessionMaxAge, &user) {
		return
	}
	c.mu.Lock()
	c.current = &user
	c.mu.Unlock()
	c.armExpiringTimer(&user)
}

// newFlow builds a sign-in flow: state, PKCE verifier, and a nonce pair
// whose hash travels to the provider while the original stays local.
func (c *Client) newFlow(provider string) (*flow, error) {
	pair, err := c.deps.Security.GenerateAndStoreNonce("")
	if err != nil {
		return nil, errors.Wrap(err, "[Client.newFlow] GenerateAndStoreNonce")
	}
	return &flow{
		state:        uuid.NewString(),
		nonce:        pair.Nonce,
		nonceHash:    pair.Hash,
		codeVerifier: oauth2.GenerateVerifier(),
		provider:     provider,
		createdAt:    c.nowTime(),
		result:       make(chan callbackResult, 1),
	}, nil
}

func (c *Client) authCodeURL(f *flow) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(f.codeVerifier),
		oauth2.SetAuthURLParam("nonce", f.nonceHash),
	}
	if f.provider != "" {
		if hint, ok := c.config.IdPHints[f.provider]; ok {
			opts = append(opts, oauth2.SetAuthURLParam("idp_hint", hint))
		}
	}
	if c.config.OrgID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope",
			joinScopes(c.config.Scopes, "urn:zitadel:iam:org:id:"+c.config.OrgID)))
	}
	return c.oauth.AuthCodeURL(f.state, opts...)
}

func joinScopes(scopes []string, extra string) string {
	joined := ""
	for i, s := range scopes {
		if i > 0 {
			joined += " "
		}
		joined += s
	}
	return joined + " " + extra
}

// SignInPopup runs the full popup sign-in: opens the sign-in window, waits
// for the loopback callback, exchanges the code, and returns the signed-in
// user. A dismissed window fails with ErrPopupClosed; other failures pass
// through unchanged.
func (c *Client) SignInPopup(ctx context.Context, provider string) (*User, error) {
	if !c.deps.Security.ValidateCallbackURL(c.config.RedirectURI) {
		return nil, ErrInvalidCallback
	}

	f, err := c.newFlow(provider)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.flows[f.state] = f
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.flows, f.state)
		c.mu.Unlock()
	}()

	if err := c.ensureCallbackServer(); err != nil {
		return nil, err
	}

	window, err := c.deps.Launcher.Open(ctx, c.authCodeURL(f), c.config.PopupFeatures)
	if err != nil {
		return nil, err
	}
	defer window.Close()

	select {
	case result := <-f.result:
		return c.completeFlow(ctx, f, result)
	case <-window.Closed():
		return nil, ErrPopupClosed
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "[Client.SignInPopup] wait for callback")
	}
}

// SignInRedirect starts the redirect sign-in variant: the flow is persisted
// and the authorization URL returned for the caller to navigate to. The
// flow is completed later by HandleRedirectCallback.
func (c *Client) SignInRedirect(provider string) (string, error) {
	if !c.deps.Security.ValidateCallbackURL(c.config.RedirectURI) {
		return "", ErrInvalidCallback
	}

	f, err := c.newFlow(provider)
	if err != nil {
		return "", err
	}

	record := persistedFlow{
		State:        f.state,
		Nonce:        f.nonce,
		NonceHash:    f.nonceHash,
		CodeVerifier: f.codeVerifier,
		Provider:     f.provider,
	}
	if err := c.deps.Sessions.Set(redirectFlowKey, record); err != nil {
		return "", errors.Wrap(err, "[Client.SignInRedirect] persist flow")
	}
	return c.authCodeURL(f), nil
}

func (c *Client) ensureCallbackServer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callback != nil {
		return nil
	}
	server, err := newCallbackServer(c.config.RedirectURI, c.routeCallback)
	if err != nil {
		return err
	}
	if err := server.start(); err != nil {
		return err
	}
	c.callback = server
	return nil
}

func (c *Client) routeCallback(result callbackResult) {
	if err := c.deliverCallback(result); err != nil {
		log.Warn().Str("state", result.state).Msg("callback received with no pending flow")
	}
}

func (c *Client) deliverCallback(result callbackResult) error {
	c.mu.Lock()
	f, ok := c.flows[result.state]
	c.mu.Unlock()
	if !ok {
		return ErrFlowNotFound
	}
	select {
	case f.result <- result:
	default:
	}
	return nil
}

// HandlePopupCallback routes an authorization response to its pending popup
// flow. The loopback server calls this internally; applications embedding
// their own callback transport may call it directly with the full callback
// URL.
func (c *Client) HandlePopupCallback(callbackURL string) error {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return errors.Wrap(err, "[Client.HandlePopupCallback] Parse")
	}
	return c.deliverCallback(parseCallback(parsed.Query()))
}

// HandleRedirectCallback completes a redirect sign-in from the full
// callback URL the provider redirected to.
func (c *Client) HandleRedirectCallback(ctx context.Context, callbackURL string) (*User, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.HandleRedirectCallback] Parse")
	}
	result := parseCallback(parsed.Query())

	var record persistedFlow
	if !c.deps.Sessions.Get(redirectFlowKey, flowMaxAge, &record) {
		return nil, ErrFlowNotFound
	}
	c.deps.Sessions.Remove(redirectFlowKey)

	if record.State != result.state {
		return nil, errors.New("state mismatch in redirect callback")
	}

	f := &flow{
		state:        record.State,
		nonce:        record.Nonce,
		nonceHash:    record.NonceHash,
		codeVerifier: record.CodeVerifier,
		provider:     record.Provider,
	}
	return c.completeFlow(ctx, f, result)
}

func (c *Client) completeFlow(ctx context.Context, f *flow, result callbackResult) (*User, error) {
	if result.errorCode != "" {
		return nil, errors.Errorf("authorization failed: %s: %s", result.errorCode, result.errorDescription)
	}
	if result.code == "" {
		return nil, errors.New("authorization callback carried no code")
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	token, err := c.oauth.Exchange(exchangeCtx, result.code, oauth2.VerifierOption(f.codeVerifier))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.completeFlow] Exchange")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, ErrNoIDToken
	}

	claims, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.completeFlow] Verify")
	}

	// The provider echoes back the hash we sent as the nonce parameter; the
	// original nonce never left this process. Validation consumes the entry,
	// so a replayed token fails here.
	if claims.Nonce != f.nonceHash || !c.deps.Security.ValidateNonceHash(f.nonceHash, f.nonce) {
		if email := stringClaim(claims.Claims, "email"); email != "" {
			c.deps.Security.RecordFailedAttempt(email, "", "")
		}
		return nil, ErrNonceMismatch
	}

	user := c.buildUser(token, rawIDToken, claims)
	c.finishLogin(user)
	return user, nil
}

func (c *Client) buildUser(token *oauth2.Token, rawIDToken string, claims *IDClaims) *User {
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = claims.Expiry
	}
	return &User{
		Profile: Profile{
			Sub:     claims.Subject,
			Email:   stringClaim(claims.Claims, "email"),
			Name:    stringClaim(claims.Claims, "name"),
			Picture: stringClaim(claims.Claims, "picture"),
		},
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
		Roles:        ExtractRoles(claims.Claims),
	}
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return value
}

func (c *Client) finishLogin(user *User) {
	c.mu.Lock()
	c.current = user
	c.mu.Unlock()

	if err := c.deps.Sessions.Set(sessionKey, user); err != nil {
		log.Error().Err(err).Msg("session persist failed")
	}
	if err := c.deps.Guardian.UpdateTokenCache(user.Profile.Sub, user.Profile.Email); err != nil {
		log.Debug().Err(err).Msg("token cache update failed")
	}
	if user.Profile.Email != "" {
		c.deps.Security.ClearFailedAttempts(user.Profile.Email)
	}

	c.armExpiringTimer(user)
	c.notifyUserLoaded(user)
	c.deps.Sync.NotifyLogin(user.Profile.Sub)
}

// GetUser returns the signed-in user. An expired session triggers exactly
// one silent renewal; a renewal that fails (a revoked refresh token is the
// ordinary "session over" outcome, not an exceptional one) clears local
// state and yields a nil user. "No session" is never an error.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expired(c.nowTime()) {
		return current, nil
	}

	renewed, err := c.renew(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("silent renewal failed, session ended")
		c.clearLocal()
		return nil, nil
	}
	return renewed, nil
}

// GetCurrentSession projects the current user into an AuthSession, nil when
// no access token is present.
func (c *Client) GetCurrentSession(ctx context.Context) *AuthSession {
	user, err := c.GetUser(ctx)
	if err != nil {
		return nil
	}
	return sessionFromUser(user)
}

// IsAuthenticated reports whether a live, unexpired session exists.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	user, err := c.GetUser(ctx)
	return err == nil && user != nil && !user.Expired(c.nowTime())
}

// RenewToken forces a silent renewal, returning nil (never an error) when
// renewal fails.
func (c *Client) RenewToken(ctx context.Context) *User {
	user, err := c.renew(ctx)
	if err != nil {
		log.Error().Err(err).Msg("token renewal failed")
		c.clearLocal()
		return nil
	}
	return user
}

func (c *Client) renew(ctx context.Context) (*User, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, errors.New("no session to renew")
	}
	if current.RefreshToken == "" {
		return nil, errors.New("no refresh token available")
	}

	renewCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	source := c.oauth.TokenSource(renewCtx, &oauth2.Token{RefreshToken: current.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.Wrap(err, "[Client.renew] Token")
	}

	renewed := *current
	renewed.AccessToken = token.AccessToken
	renewed.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		renewed.RefreshToken = token.RefreshToken
	}
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		renewed.IDToken = rawIDToken
		if roles := RolesFromRawToken(rawIDToken); roles != nil {
			renewed.Roles = roles
		}
	}

	c.mu.Lock()
	c.current = &renewed
	c.mu.Unlock()

	if err := c.deps.Sessions.Set(sessionKey, &renewed); err != nil {
		log.Error().Err(err).Msg("session persist failed")
	}
	if err := c.deps.Guardian.UpdateTokenCache(renewed.Profile.Sub, renewed.Profile.Email); err != nil {
		log.Debug().Err(err).Msg("token cache update failed")
	}

	c.armExpiringTimer(&renewed)
	c.notifyUserLoaded(&renewed)
	c.deps.Sync.NotifySessionRefresh(renewed.Profile.Sub)
	return &renewed, nil
}

// SignOut ends the session. With localOnly, only local state is cleared;
// otherwise the provider's end-session endpoint is opened as well so the
// provider-side session dies too.
func (c *Client) SignOut(ctx context.Context, localOnly bool) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if !localOnly && c.endSessionURL != "" && current != nil {
		logoutURL, err := c.buildLogoutURL(current.IDToken)
		if err != nil {
			return err
		}
		if _, err := c.deps.Launcher.Open(ctx, logoutURL, c.config.PopupFeatures); err != nil {
			return errors.Wrap(err, "[Client.SignOut] open end-session")
		}
	}

	c.clearLocal()
	return nil
}

func (c *Client) buildLogoutURL(idTokenHint string) (string, error) {
	parsed, err := url.Parse(c.endSessionURL)
	if err != nil {
		return "", errors.Wrap(err, "[Client.buildLogoutURL] Parse")
	}
	query := parsed.Query()
	if idTokenHint != "" {
		query.Set("id_token_hint", idTokenHint)
	}
	if c.config.PostLogoutURI != "" {
		query.Set("post_logout_redirect_uri", c.config.PostLogoutURI)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) clearLocal() {
	c.mu.Lock()
	hadUser := c.current != nil
	c.current = nil
	if c.expiringTimer != nil {
		c.expiringTimer.Stop()
		c.expiringTimer = nil
	}
	c.mu.Unlock()

	c.deps.Sessions.Remove(sessionKey)
	c.deps.Guardian.ClearTokenCache()

	if hadUser {
		c.notifyUserUnloaded()
		c.deps.Sync.NotifyLogout()
	}
}

// ClearAuthState wipes all local authentication state: the session, any
// pending flows, and the token cache. Used to recover from a wedged flow.
func (c *Client) ClearAuthState() {
	c.mu.Lock()
	c.flows = make(map[string]*flow)
	c.mu.Unlock()

	c.deps.Sessions.Remove(redirectFlowKey)
	c.clearLocal()
}

// OnUserLoaded subscribes to sign-in and renewal completions.
func (c *Client) OnUserLoaded(callback func(*User)) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.userLoadedListeners[id] = callback
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.userLoadedListeners, id)
		c.mu.Unlock()
	}
}

// OnUserUnloaded subscribes to sign-outs.
func (c *Client) OnUserUnloaded(callback func()) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.userUnloadedListeners[id] = callback
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.userUnloadedListeners, id)
		c.mu.Unlock()
	}
}

// OnAccessTokenExpiring subscribes to the pre-expiry warning, fired about
// a minute before the access token expires.
func (c *Client) OnAccessTokenExpiring(callback func()) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.expiringListeners[id] = callback
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.expiringListeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) armExpiringTimer(user *User) {
	if user.ExpiresAt.IsZero() {
		return
	}
	delay := user.ExpiresAt.Sub(c.nowTime()) - expiringLeadTime
	if delay < 0 {
		delay = 0
	}

	c.mu.Lock()
	if c.expiringTimer != nil {
		c.expiringTimer.Stop()
	}
	c.expiringTimer = time.AfterFunc(delay, c.notifyExpiring)
	c.mu.Unlock()
}

func (c *Client) notifyUserLoaded(user *User) {
	c.mu.Lock()
	callbacks := make([]func(*User), 0, len(c.userLoadedListeners))
	for _, cb := range c.userLoadedListeners {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, callback := range callbacks {
		safeNotify(func() { callback(user) })
	}
}

func (c *Client) notifyUserUnloaded() {
	c.mu.Lock()
	callbacks := make([]func(), 0, len(c.userUnloadedListeners))
	for _, cb := range c.userUnloadedListeners {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, callback := range callbacks {
		safeNotify(callback)
	}
}

func (c *Client) notifyExpiring() {
	c.mu.Lock()
	callbacks := make([]func(), 0, len(c.expiringListeners))
	for _, cb := range c.expiringListeners {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, callback := range callbacks {
		safeNotify(callback)
	}
}

func safeNotify(callback func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("auth event listener panicked")
		}
	}()
	callback()
}

// Close releases the loopback callback server and timers. The Client is
// unusable afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	server := c.callback
	c.callback = nil
	if c.expiringTimer != nil {
		c.expiringTimer.Stop()
		c.expiringTimer = nil
	}
	c.mu.Unlock()

	if server != nil {
		server.shutdown()
	}
}
