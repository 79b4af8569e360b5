// Package jwtxtest mints realm-shaped tokens for tests.
package jwtxtest

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/pkg/cryptox"
	"github.com/aussiebroadwan/todo/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// Realm is a signing key plus the issuer it stamps on tokens.
type Realm struct {
	Issuer   string
	ClientID string
	Signer   *jwtx.RS256Signer
}

// NewRealm generates a fresh 2048-bit key. Tests that need many tokens
// should share one Realm.
func NewRealm(t testing.TB, issuer, clientID string) *Realm {
	t.Helper()

	pemKey, err := cryptox.GenerateRSAKey(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := jwtx.NewSignerRS256("test-kid", pemKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return &Realm{Issuer: issuer, ClientID: clientID, Signer: signer}
}

// Claims returns sensible defaults for a user token valid for ttl.
func (r *Realm) Claims(sub string, ttl time.Duration) jwtx.Claims {
	now := time.Now().UTC()
	return jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.Issuer,
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"account"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AZP:               r.ClientID,
		Typ:               "Bearer",
		SID:               "sid-" + sub,
		Scope:             "openid profile email",
		PreferredUsername: sub,
		Email:             sub + "@example.com",
		RealmAccess:       jwtx.Access{Roles: []string{"default-roles-todo"}},
	}
}

// Token signs claims for sub valid for ttl. A negative ttl gives an
// already-expired token.
func (r *Realm) Token(sub string, ttl time.Duration) string {
	return r.Signer.MustSign(r.Claims(sub, ttl))
}

// JWKS is what the realm certs endpoint returns.
func (r *Realm) JWKS() jwtx.JWKS {
	return jwtx.JWKS{Keys: []jwtx.JWK{r.Signer.PublicJWK()}}
}
