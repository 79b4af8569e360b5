package session

import (
	"context"
	"time"

	"github.com/aussiebroadwan/todo/pkg/jwtx"
)

// Provider is the identity-provider client the Holder drives. The Keycloak
// adapter is the real one; tests plug in fakes.
type Provider interface {
	// Init silently resumes an existing session, reporting whether one was found.
	Init(ctx context.Context) (bool, error)

	// Login runs the interactive flow and returns once it has a token.
	Login(ctx context.Context) error

	// LoginWithPassword is the headless variant.
	LoginWithPassword(ctx context.Context, username, password, otp string) error

	Logout(ctx context.Context) error

	// UpdateToken refreshes if the token expires within minValidity (always
	// when negative) and reports whether it was replaced.
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)

	Token() string
	TokenParsed() *jwtx.Claims

	// OnTokenExpired registers a callback fired when the access token lapses.
	OnTokenExpired(cb func())

	HasRealmRole(role string) bool
	// HasResourceRole with an empty resource means the provider's own client.
	HasResourceRole(role, resource string) bool
}
