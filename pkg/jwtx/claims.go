package jwtx

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access is the {"roles": [...]} shape Keycloak uses for both realm_access
// and each entry of resource_access.
type Access struct {
	Roles []string `json:"roles,omitempty"`
}

// Claims are the access-token claims a Keycloak realm issues with the
// default client scopes (profile, email, roles).
type Claims struct {
	jwt.RegisteredClaims

	// Session ID, shared by every token of one SSO session
	SID string `json:"sid,omitempty"`

	// Space delimited, "openid profile email"
	Scope string `json:"scope,omitempty"`

	// Authorized party, the client the token was issued to
	AZP string `json:"azp,omitempty"`

	Typ string `json:"typ,omitempty"`

	// Echo of the authorize request nonce, ID tokens only
	Nonce string `json:"nonce,omitempty"`

	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`

	RealmAccess    Access            `json:"realm_access,omitempty"`
	ResourceAccess map[string]Access `json:"resource_access,omitempty"`
}

// Scopes splits the scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

func (c *Claims) HasRealmRole(role string) bool {
	return slices.Contains(c.RealmAccess.Roles, role)
}

// HasResourceRole checks roles granted on a specific client.
func (c *Claims) HasResourceRole(role, client string) bool {
	access, ok := c.ResourceAccess[client]
	if !ok {
		return false
	}
	return slices.Contains(access.Roles, role)
}

// DisplayName picks the nicest name available for a prompt or header.
func (c *Claims) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.PreferredUsername != "":
		return c.PreferredUsername
	default:
		return c.Subject
	}
}

// ExpiresWithin reports whether the token is expired or will be within d of now.
// A token without exp never expires.
func (c *Claims) ExpiresWithin(d time.Duration, now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(d).Before(c.ExpiresAt.Time)
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
// Keycloak puts the client in azp rather than aud for public clients, so
// azp counts too.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) || c.AZP == want {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
