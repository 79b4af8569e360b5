package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/internal/session"
	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/memory"
	"github.com/aussiebroadwan/todo/pkg/jwtx"
	"github.com/aussiebroadwan/todo/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scripted identity provider.
type fakeProvider struct {
	mu sync.Mutex

	initOK    bool
	initErr   error
	initCalls int

	token     string
	claims    *jwtx.Claims
	nextToken string

	updateRefreshed bool
	updateErr       error
	updateCalls     int
	lastMinValidity time.Duration

	logoutCalls int
	onLogout    func()

	onExpired func()
	realm     []string
	resource  []string
}

func (f *fakeProvider) Init(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initOK, f.initErr
}

func (f *fakeProvider) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = "login-token"
	f.claims = &jwtx.Claims{PreferredUsername: "alice"}
	return nil
}

func (f *fakeProvider) LoginWithPassword(_ context.Context, username, password, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if password != "pw" {
		return errors.New("invalid_grant")
	}
	f.token = "password-token"
	f.claims = &jwtx.Claims{PreferredUsername: username}
	return nil
}

func (f *fakeProvider) Logout(context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	cb := f.onLogout
	f.token = ""
	f.claims = nil
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeProvider) UpdateToken(_ context.Context, minValidity time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	f.lastMinValidity = minValidity
	if f.updateErr != nil {
		return false, f.updateErr
	}
	if f.updateRefreshed {
		f.token = f.nextToken
	}
	return f.updateRefreshed, nil
}

func (f *fakeProvider) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeProvider) TokenParsed() *jwtx.Claims {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

func (f *fakeProvider) OnTokenExpired(cb func()) { f.onExpired = cb }

func (f *fakeProvider) HasRealmRole(role string) bool {
	for _, r := range f.realm {
		if r == role {
			return true
		}
	}
	return false
}

func (f *fakeProvider) HasResourceRole(role, _ string) bool {
	for _, r := range f.resource {
		if r == role {
			return true
		}
	}
	return false
}

func newHolder(t *testing.T, p *fakeProvider) (*session.Holder, *storage.TokenCache) {
	t.Helper()
	cache := storage.NewTokenCache(memory.NewStore())
	return session.New(p, cache, slogx.Discard()), cache
}

func cached(t *testing.T, c *storage.TokenCache) string {
	t.Helper()
	tok, err := c.Read(context.Background())
	require.NoError(t, err)
	return tok
}

func TestInitializeResumes(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{initOK: true, token: "resumed", claims: &jwtx.Claims{PreferredUsername: "alice"}}
	h, cache := newHolder(t, p)
	require.Equal(t, session.StateInitializing, h.State())

	h.Initialize(context.Background())

	select {
	case <-h.Ready():
	default:
		t.Fatal("ready not closed")
	}
	require.True(t, h.Authenticated())
	require.Equal(t, "resumed", h.Token())
	require.Equal(t, "alice", h.Principal().PreferredUsername)
	require.Equal(t, "resumed", cached(t, cache))
}

func TestInitializeFailureIsUnauthenticated(t *testing.T) {
	t.Parallel()

	for name, p := range map[string]*fakeProvider{
		"no session": {initOK: false},
		"error":      {initErr: errors.New("realm unreachable")},
	} {
		t.Run(name, func(t *testing.T) {
			h, _ := newHolder(t, p)
			h.Initialize(context.Background())

			require.Equal(t, session.StateUnauthenticated, h.State())
			require.Empty(t, h.Token())
			require.Nil(t, h.Principal())
		})
	}
}

func TestInitializeRunsOnce(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{initOK: false}
	h, _ := newHolder(t, p)
	h.Initialize(context.Background())

	require.NoError(t, h.LoginWithPassword(context.Background(), "alice", "pw", ""))
	p.initOK = true
	h.Initialize(context.Background())

	require.True(t, h.Authenticated(), "second Initialize must not reset state")
	require.Equal(t, "password-token", h.Token())
}

func TestLoginBeforeInitializeSettles(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"browser", "password"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			p := &fakeProvider{}
			h, _ := newHolder(t, p)

			if name == "browser" {
				require.NoError(t, h.Login(ctx))
			} else {
				require.NoError(t, h.LoginWithPassword(ctx, "alice", "pw", ""))
			}

			select {
			case <-h.Ready():
			case <-time.After(time.Second):
				t.Fatal("Ready not closed after login")
			}
			require.Equal(t, session.StateAuthenticated, h.State())

			h.Initialize(ctx)
			require.True(t, h.Authenticated(), "Initialize after login must not reset state")
			require.Zero(t, p.initCalls)
		})
	}
}

func TestFailedLoginDoesNotSettle(t *testing.T) {
	t.Parallel()

	h, _ := newHolder(t, &fakeProvider{})
	require.Error(t, h.LoginWithPassword(context.Background(), "alice", "wrong", ""))

	select {
	case <-h.Ready():
		t.Fatal("Ready closed without a settled state")
	default:
	}
	require.Equal(t, session.StateInitializing, h.State())
}

func TestLogin(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	h, cache := newHolder(t, p)
	h.Initialize(context.Background())

	require.NoError(t, h.Login(context.Background()))
	require.True(t, h.Authenticated())
	require.Equal(t, "login-token", h.Token())
	require.Equal(t, "login-token", cached(t, cache))

	err := h.LoginWithPassword(context.Background(), "alice", "wrong", "")
	require.Error(t, err)
	require.Equal(t, "login-token", h.Token(), "failed login leaves the session alone")
}

func TestLogoutClearsBeforeProvider(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{initOK: true, token: "tok", claims: &jwtx.Claims{}}
	h, cache := newHolder(t, p)
	h.Initialize(context.Background())
	require.Equal(t, "tok", cached(t, cache))

	var authedDuringLogout bool
	var cacheDuringLogout string
	p.onLogout = func() {
		authedDuringLogout = h.Authenticated()
		cacheDuringLogout = cached(t, cache)
	}

	require.NoError(t, h.Logout(context.Background()))

	require.False(t, authedDuringLogout)
	require.Empty(t, cacheDuringLogout)
	require.Equal(t, 1, p.logoutCalls)
	require.Empty(t, h.Token())
	require.Nil(t, h.Principal())
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("replaced token is synced", func(t *testing.T) {
		p := &fakeProvider{initOK: true, token: "old", claims: &jwtx.Claims{}, updateRefreshed: true, nextToken: "new"}
		h, cache := newHolder(t, p)
		h.Initialize(context.Background())

		refreshed, err := h.Refresh(context.Background(), 30*time.Second)
		require.NoError(t, err)
		require.True(t, refreshed)
		require.Equal(t, 30*time.Second, p.lastMinValidity)
		require.Equal(t, "new", h.Token())
		require.Equal(t, "new", cached(t, cache))
	})

	t.Run("still valid", func(t *testing.T) {
		p := &fakeProvider{initOK: true, token: "old", claims: &jwtx.Claims{}}
		h, _ := newHolder(t, p)
		h.Initialize(context.Background())

		refreshed, err := h.Refresh(context.Background(), 30*time.Second)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.Equal(t, "old", h.Token())
	})

	t.Run("failure is returned, not acted on", func(t *testing.T) {
		p := &fakeProvider{initOK: true, token: "old", claims: &jwtx.Claims{}, updateErr: errors.New("not renewable")}
		h, _ := newHolder(t, p)
		h.Initialize(context.Background())

		_, err := h.Refresh(context.Background(), 30*time.Second)
		require.Error(t, err)
		require.True(t, h.Authenticated())
		require.Zero(t, p.logoutCalls)
	})
}

func TestExpiryRefreshesOrLogsOut(t *testing.T) {
	t.Parallel()

	t.Run("refresh ok", func(t *testing.T) {
		p := &fakeProvider{initOK: true, token: "old", claims: &jwtx.Claims{}, updateRefreshed: true, nextToken: "new"}
		h, _ := newHolder(t, p)
		h.Initialize(context.Background())

		p.onExpired()
		require.Equal(t, 1, p.updateCalls)
		require.Equal(t, session.ExpiryMinValidity, p.lastMinValidity)
		require.Equal(t, "new", h.Token())
		require.Zero(t, p.logoutCalls)
	})

	t.Run("refresh fails", func(t *testing.T) {
		p := &fakeProvider{initOK: true, token: "old", claims: &jwtx.Claims{}, updateErr: errors.New("invalid_grant")}
		h, _ := newHolder(t, p)
		h.Initialize(context.Background())

		p.onExpired()
		require.Equal(t, 1, p.updateCalls)
		require.Equal(t, 1, p.logoutCalls)
		require.False(t, h.Authenticated())
	})
}

func TestHasRole(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{initOK: true, token: "tok", claims: &jwtx.Claims{}, realm: []string{"admin"}, resource: []string{"editor"}}
	h, _ := newHolder(t, p)
	require.False(t, h.HasRole("admin"), "nothing before init")

	h.Initialize(context.Background())
	require.True(t, h.HasRole("admin"))
	require.True(t, h.HasRole("editor"))
	require.False(t, h.HasRole("owner"))
}
