package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/todo/pkg/cryptox"
	"github.com/aussiebroadwan/todo/pkg/jwtx"
	"github.com/pkg/browser"
)

// RecordStore persists the session record between runs. Load returns
// (nil, nil) when nothing is stored.
type RecordStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, value []byte) error
	Clear(ctx context.Context) error
}

type AdapterOptions struct {
	Client *Client
	Store  RecordStore

	// Sealer encrypts the record at rest. Nil stores it as plain JSON.
	Sealer *cryptox.Sealer

	// Verifier checks tokens from the token endpoint. Nil trusts TLS.
	Verifier *Verifier

	Scopes       []string
	RedirectPort int
	LoginTimeout time.Duration

	// OTPSecret, when set, generates the TOTP code for password logins that
	// don't pass one explicitly.
	OTPSecret string

	// OnAuthURL sees the authorize URL before the browser is opened, so the
	// caller can print it for headless boxes.
	OnAuthURL func(url string)

	// OpenBrowser defaults to the system browser.
	OpenBrowser func(url string) error

	Logger *slog.Logger
}

// sessionRecord is what survives between CLI runs. It plays the part of the
// realm's SSO cookie in a browser.
type sessionRecord struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	IDToken          string    `json:"id_token,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitzero"`
}

// Adapter is a stateful Keycloak session: the Go shape of a keycloak-js
// instance. It is safe for concurrent use, though concurrent refreshes are
// not coalesced.
type Adapter struct {
	client   *Client
	store    RecordStore
	sealer   *cryptox.Sealer
	verifier *Verifier
	opts     AdapterOptions
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	rec       sessionRecord
	claims    *jwtx.Claims
	timer     *time.Timer
	onExpired func()
}

func NewAdapter(opts AdapterOptions) *Adapter {
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = browser.OpenURL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoginTimeout == 0 {
		opts.LoginTimeout = 5 * time.Minute
	}

	return &Adapter{
		client:   opts.Client,
		store:    opts.Store,
		sealer:   opts.Sealer,
		verifier: opts.Verifier,
		opts:     opts,
		logger:   opts.Logger.With("component", "keycloak"),
		now:      time.Now,
	}
}

// Init silently resumes a stored session. It reports false, with no error,
// when there is nothing to resume or the realm no longer honours it.
func (a *Adapter) Init(ctx context.Context) (bool, error) {
	rec, err := a.loadRecord(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	now := a.now()
	if !rec.RefreshExpiresAt.IsZero() && !now.Before(rec.RefreshExpiresAt) {
		a.logger.Debug("stored session expired")
		return false, a.clear(ctx)
	}

	claims, err := jwtx.ParseUnverified(rec.AccessToken)
	if err != nil {
		a.logger.Warn("dropping unreadable stored token", "err", err)
		return false, a.clear(ctx)
	}

	if !claims.ExpiresWithin(0, now) {
		a.set(*rec, claims)
		return true, nil
	}

	if rec.RefreshToken == "" {
		return false, a.clear(ctx)
	}

	tr, err := a.client.RefreshGrant(ctx, rec.RefreshToken)
	if err != nil {
		if IsInvalidGrant(err) {
			a.logger.Debug("stored session rejected by realm", "err", err)
			return false, a.clear(ctx)
		}
		return false, fmt.Errorf("failed to resume session: %w", err)
	}

	if err := a.apply(ctx, tr, rec.RefreshToken, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Login runs the authorization code flow with PKCE through the system
// browser and a loopback listener. It returns once tokens are in hand.
func (a *Adapter) Login(ctx context.Context) error {
	pkce, err := GeneratePKCEChallenge()
	if err != nil {
		return err
	}
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return err
	}
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return err
	}

	lb, err := listenLoopback(a.opts.RedirectPort, state, a.logger)
	if err != nil {
		return err
	}
	defer lb.Close()

	redirectURI := lb.RedirectURI()
	authURL := a.client.BuildAuthorizeURL(AuthorizeRequest{
		RedirectURI: redirectURI,
		State:       state,
		Nonce:       nonce,
		Scopes:      a.opts.Scopes,
		PKCE:        pkce,
	})

	if a.opts.OnAuthURL != nil {
		a.opts.OnAuthURL(authURL)
	}
	if err := a.opts.OpenBrowser(authURL); err != nil {
		a.logger.Warn("could not open browser", "err", err)
	}

	code, err := lb.Wait(ctx, a.opts.LoginTimeout)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	tr, err := a.client.ExchangeAuthorizationCode(ctx, code, redirectURI, pkce.Verifier)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return a.apply(ctx, tr, "", nonce)
}

// LoginWithPassword uses the Direct Access Grant instead of the browser.
func (a *Adapter) LoginWithPassword(ctx context.Context, username, password, otp string) error {
	if otp == "" && a.opts.OTPSecret != "" {
		code, err := TOTPCode(a.opts.OTPSecret, a.now())
		if err != nil {
			return err
		}
		otp = code
	}

	tr, err := a.client.PasswordGrant(ctx, username, password, otp, a.opts.Scopes)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	return a.apply(ctx, tr, "", "")
}

// Logout forgets the session locally first, then asks the realm to end it.
// The realm call is best effort.
func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.RLock()
	refresh := a.rec.RefreshToken
	a.mu.RUnlock()

	clearErr := a.clear(ctx)

	if refresh != "" {
		if err := a.client.EndSession(ctx, refresh); err != nil {
			a.logger.Warn("failed to end realm session", "err", err)
		}
	}

	return clearErr
}

// UpdateToken refreshes when the access token expires within minValidity.
// A negative minValidity always refreshes. It reports whether the token
// was replaced.
func (a *Adapter) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	a.mu.RLock()
	refresh := a.rec.RefreshToken
	claims := a.claims
	a.mu.RUnlock()

	if refresh == "" {
		return false, ErrNotRenewable
	}
	if minValidity >= 0 && claims != nil && !claims.ExpiresWithin(minValidity, a.now()) {
		return false, nil
	}

	tr, err := a.client.RefreshGrant(ctx, refresh)
	if err != nil {
		if IsInvalidGrant(err) {
			a.logger.Debug("refresh token rejected, clearing session", "err", err)
			_ = a.clear(ctx)
		}
		return false, fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := a.apply(ctx, tr, refresh, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rec.AccessToken
}

// RefreshToken is exposed for status output only.
func (a *Adapter) RefreshToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rec.RefreshToken
}

// TokenParsed returns a copy of the access token claims, or nil.
func (a *Adapter) TokenParsed() *jwtx.Claims {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.claims == nil {
		return nil
	}
	c := *a.claims
	return &c
}

// OnTokenExpired registers cb to run, on its own goroutine, when the access
// token reaches exp.
func (a *Adapter) OnTokenExpired(cb func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onExpired = cb
}

func (a *Adapter) HasRealmRole(role string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.claims != nil && a.claims.HasRealmRole(role)
}

// HasResourceRole checks a client role. An empty resource means our own client.
func (a *Adapter) HasResourceRole(role, resource string) bool {
	if resource == "" {
		resource = a.client.ClientID()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.claims != nil && a.claims.HasResourceRole(role, resource)
}

// UserInfo asks the realm about the current user.
func (a *Adapter) UserInfo(ctx context.Context) (*UserInfo, error) {
	token := a.Token()
	if token == "" {
		return nil, ErrNotRenewable
	}
	return a.client.UserInfo(ctx, token)
}

// Close stops the expiry timer.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return nil
}

// apply adopts a token response. prevRefresh is kept when the realm doesn't
// rotate the refresh token; nonce, when set, must match the ID token.
func (a *Adapter) apply(ctx context.Context, tr *TokenResponse, prevRefresh, nonce string) error {
	var (
		claims *jwtx.Claims
		err    error
	)
	if a.verifier != nil {
		claims, err = a.verifier.Verify(ctx, tr.AccessToken)
	} else {
		claims, err = jwtx.ParseUnverified(tr.AccessToken)
	}
	if err != nil {
		return err
	}

	if nonce != "" && tr.IDToken != "" {
		id, err := jwtx.ParseUnverified(tr.IDToken)
		if err != nil {
			return err
		}
		if id.Nonce != nonce {
			return errors.New("keycloak: id token nonce mismatch")
		}
	}

	now := a.now()
	rec := sessionRecord{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
		ExpiresAt:    now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if claims.ExpiresAt != nil {
		rec.ExpiresAt = claims.ExpiresAt.Time
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = prevRefresh
	}
	if tr.RefreshExpiresIn > 0 {
		rec.RefreshExpiresAt = now.Add(time.Duration(tr.RefreshExpiresIn) * time.Second)
	}

	a.set(rec, claims)

	if err := a.saveRecord(ctx, rec); err != nil {
		// The session still works for this run, it just won't resume.
		a.logger.Warn("failed to persist session", "err", err)
	}
	return nil
}

func (a *Adapter) set(rec sessionRecord, claims *jwtx.Claims) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rec = rec
	a.claims = claims

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(max(rec.ExpiresAt.Sub(a.now()), 0), a.fireExpired)
}

func (a *Adapter) fireExpired() {
	a.mu.RLock()
	cb := a.onExpired
	a.mu.RUnlock()
	if cb != nil {
		cb()
	}
}

func (a *Adapter) clear(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.rec = sessionRecord{}
	a.claims = nil
	a.mu.Unlock()

	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}
	return nil
}

func (a *Adapter) saveRecord(ctx context.Context, rec sessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if a.sealer != nil {
		if raw, err = a.sealer.Seal(raw); err != nil {
			return err
		}
	}
	return a.store.Save(ctx, raw)
}

// loadRecord returns nil for a missing or unreadable record. A record sealed
// with a different master key is dropped so the user simply logs in again.
func (a *Adapter) loadRecord(ctx context.Context) (*sessionRecord, error) {
	raw, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored session: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	if a.sealer != nil {
		if raw, err = a.sealer.Open(raw); err != nil {
			a.logger.Warn("dropping stored session", "err", err)
			return nil, a.clear(ctx)
		}
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.AccessToken == "" {
		a.logger.Warn("dropping malformed stored session")
		return nil, a.clear(ctx)
	}
	return &rec, nil
}
