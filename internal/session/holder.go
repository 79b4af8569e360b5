package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/pkg/jwtx"
)

// ExpiryMinValidity is how much life a token must have left for the
// background refresh to leave it alone.
const ExpiryMinValidity = 30 * time.Second

type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Holder owns the session: token, principal, and authenticated flag. Other
// components read it through the accessors and never mutate it.
type Holder struct {
	provider Provider
	cache    *storage.TokenCache
	logger   *slog.Logger

	mu        sync.RWMutex
	state     State
	token     string
	principal *jwtx.Claims

	initOnce sync.Once
	ready    chan struct{}
}

func New(provider Provider, cache *storage.TokenCache, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Holder{
		provider: provider,
		cache:    cache,
		logger:   logger.With("component", "session"),
		state:    StateInitializing,
		ready:    make(chan struct{}),
	}
	provider.OnTokenExpired(h.handleExpired)
	return h
}

// Initialize tries to resume a stored session. Failures are logged and leave
// the holder unauthenticated. Only the first call does anything.
func (h *Holder) Initialize(ctx context.Context) {
	h.initOnce.Do(func() {
		defer close(h.ready)

		ok, err := h.provider.Init(ctx)
		if err != nil {
			h.logger.Warn("failed to initialize session", "err", err)
		}
		if err != nil || !ok {
			h.reset(ctx, StateUnauthenticated)
			return
		}
		h.capture(ctx)
	})
}

// Ready is closed once the holder has settled on a state, through
// Initialize or a successful login, whichever comes first.
func (h *Holder) Ready() <-chan struct{} { return h.ready }

// settle marks initialization done after a login. A later Initialize is a
// no-op and can't undo the login.
func (h *Holder) settle() {
	h.initOnce.Do(func() { close(h.ready) })
}

// Login runs the provider's interactive login. The round trip finishes
// inside the call, after which the new token and principal are captured.
func (h *Holder) Login(ctx context.Context) error {
	if err := h.provider.Login(ctx); err != nil {
		return err
	}
	h.capture(ctx)
	h.settle()
	return nil
}

func (h *Holder) LoginWithPassword(ctx context.Context, username, password, otp string) error {
	if err := h.provider.LoginWithPassword(ctx, username, password, otp); err != nil {
		return err
	}
	h.capture(ctx)
	h.settle()
	return nil
}

// Logout forgets the session locally, token cache included, before the
// provider is asked to end it.
func (h *Holder) Logout(ctx context.Context) error {
	h.reset(ctx, StateUnauthenticated)
	return h.provider.Logout(ctx)
}

// Refresh asks the provider for a token valid for at least minValidity.
// Callers decide what a failure means; the holder never logs out on its own
// here.
func (h *Holder) Refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	refreshed, err := h.provider.UpdateToken(ctx, minValidity)
	if err != nil {
		return false, err
	}
	if refreshed {
		h.capture(ctx)
	}
	return refreshed, nil
}

func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Holder) Authenticated() bool {
	return h.State() == StateAuthenticated
}

// Token is the current bearer token, "" when unauthenticated.
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Principal returns a copy of the token claims, or nil.
func (h *Holder) Principal() *jwtx.Claims {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.principal == nil {
		return nil
	}
	c := *h.principal
	return &c
}

// HasRole accepts a role granted on our client or on the realm.
func (h *Holder) HasRole(role string) bool {
	if !h.Authenticated() {
		return false
	}
	return h.provider.HasResourceRole(role, "") || h.provider.HasRealmRole(role)
}

// handleExpired runs off the provider's timer, detached from any request.
func (h *Holder) handleExpired() {
	ctx := context.Background()

	if _, err := h.Refresh(ctx, ExpiryMinValidity); err != nil {
		h.logger.Info("token expired and could not be refreshed, logging out", "err", err)
		if err := h.Logout(ctx); err != nil {
			h.logger.Warn("logout after expiry failed", "err", err)
		}
	}
}

func (h *Holder) capture(ctx context.Context) {
	token := h.provider.Token()
	if token == "" {
		h.reset(ctx, StateUnauthenticated)
		return
	}

	claims := h.provider.TokenParsed()

	h.mu.Lock()
	h.state = StateAuthenticated
	h.token = token
	h.principal = claims
	h.mu.Unlock()

	if err := h.cache.Write(ctx, token); err != nil {
		h.logger.Warn("failed to update token cache", "err", err)
	}
}

func (h *Holder) reset(ctx context.Context, state State) {
	h.mu.Lock()
	h.state = state
	h.token = ""
	h.principal = nil
	h.mu.Unlock()

	if err := h.cache.Clear(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("failed to clear token cache", "err", err)
	}
}
